package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/Rrens/slack-gpt/internal/usage"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// DefaultImageTokens is the fixed token charge for one generated image
const DefaultImageTokens = 9

// ImageConfig holds the image command settings
type ImageConfig struct {
	Provider        string
	Tokens          int
	Drawing         string
	Done            string
	TranslatePrompt string
}

// ImageService draws images from submitted descriptions
type ImageService struct {
	providers ProviderResolver
	generator llm.ImageGenerator
	messenger Messenger
	poster    ImagePoster
	recorder  *usage.Recorder
	validate  *validator.Validate
	cfg       ImageConfig
}

// NewImageService creates a new image service
func NewImageService(
	providers ProviderResolver,
	generator llm.ImageGenerator,
	messenger Messenger,
	poster ImagePoster,
	recorder *usage.Recorder,
	cfg ImageConfig,
) *ImageService {
	if cfg.Tokens <= 0 {
		cfg.Tokens = DefaultImageTokens
	}
	return &ImageService{
		providers: providers,
		generator: generator,
		messenger: messenger,
		poster:    poster,
		recorder:  recorder,
		validate:  validator.New(),
		cfg:       cfg,
	}
}

// Draw generates an image for req and posts it to channelID, usually the actor's DM.
// Any failure is reported to the actor as text.
func (s *ImageService) Draw(ctx context.Context, channelID string, req domain.ImageRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid image request: %w", err)
	}

	scope := s.recorder.Begin(req.ActorID)
	defer scope.End()

	if _, err := s.messenger.PostMessage(ctx, channelID, s.cfg.Drawing); err != nil {
		return &domain.PlatformError{Op: "post_drawing", Err: err}
	}

	if err := s.draw(ctx, scope, channelID, req); err != nil {
		log.Error().Err(err).Str("actor_id", req.ActorID).Msg("Failed to draw image")
		if _, postErr := s.messenger.PostMessage(context.WithoutCancel(ctx), channelID, err.Error()); postErr != nil {
			log.Warn().Err(postErr).Str("actor_id", req.ActorID).Msg("Failed to post image error")
		}
		return err
	}
	return nil
}

func (s *ImageService) draw(ctx context.Context, scope *usage.Scope, channelID string, req domain.ImageRequest) error {
	prompt := req.Description
	if req.Translate {
		translated, err := s.translate(ctx, scope, prompt)
		if err != nil {
			return err
		}
		prompt = translated
	}

	url, err := s.generator.GenerateImage(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to generate image: %w", err)
	}

	if err := s.poster.PostImage(ctx, channelID, s.cfg.Done, prompt, url); err != nil {
		return &domain.PlatformError{Op: "post_image", Err: err}
	}
	scope.AddTokens(s.cfg.Tokens)
	return nil
}

func (s *ImageService) translate(ctx context.Context, scope *usage.Scope, text string) (string, error) {
	provider, err := s.providers.GetProvider(s.cfg.Provider)
	if err != nil {
		return "", &domain.ProviderError{Provider: s.cfg.Provider, Err: err}
	}

	prompt := s.cfg.TranslatePrompt
	if prompt == "" {
		prompt = "Translate the following into English\n %s"
	}
	resp, err := provider.Complete(ctx, llm.Request{
		Messages: []domain.Turn{domain.NewTurn(fmt.Sprintf(prompt, text), domain.RoleUser)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to translate description: %w", err)
	}
	scope.AddTokens(resp.TokensUsed)

	return strings.TrimSpace(resp.Content), nil
}
