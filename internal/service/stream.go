package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/rs/zerolog"
)

// DefaultEditBatchSize is how many fragments arrive between two edits of the reply
const DefaultEditBatchSize = 2

const noticeTimeout = 10 * time.Second

// StreamConfig controls how a streamed answer is rendered
type StreamConfig struct {
	BatchSize     int
	Placeholder   string
	FailureNotice string
}

// StreamResult describes one streamed answer
type StreamResult struct {
	Text             string
	Fragments        int
	Edits            int
	PromptTokens     int
	CompletionTokens int
	// NoticeShown is true when the placeholder was replaced by the failure notice
	NoticeShown bool
}

// Tokens is the amount billed for the answer
func (r StreamResult) Tokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Streamer posts a placeholder and progressively edits it as fragments arrive
type Streamer struct {
	messenger Messenger
	tokenizer llm.Tokenizer
	cfg       StreamConfig
}

// NewStreamer creates a streamer
func NewStreamer(messenger Messenger, tokenizer llm.Tokenizer, cfg StreamConfig) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEditBatchSize
	}
	if cfg.Placeholder == "" {
		cfg.Placeholder = ":hourglass_flowing_sand:"
	}
	return &Streamer{messenger: messenger, tokenizer: tokenizer, cfg: cfg}
}

// Run streams the provider's answer to req into channelID.
// The reply is edited every BatchSize fragments and once more at the end, always with the
// full accumulated text. On error the placeholder is replaced with the failure notice.
func (s *Streamer) Run(ctx context.Context, provider llm.Provider, req llm.Request, channelID string) (StreamResult, error) {
	var res StreamResult
	promptTokens := s.tokenizer.CountMessages(req.Messages)

	ref, err := s.messenger.PostMessage(ctx, channelID, s.cfg.Placeholder)
	if err != nil {
		return res, &domain.PlatformError{Op: "post_placeholder", Err: err}
	}

	stream, err := provider.Stream(ctx, req)
	if err != nil {
		return s.fail(ctx, ref, res, promptTokens, "", provider.Name(), err)
	}
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Content != "" {
			res.Fragments++
			text.WriteString(chunk.Content)
			if res.Fragments%s.cfg.BatchSize == 0 {
				if err := s.messenger.UpdateMessage(ctx, ref, strings.TrimSpace(text.String())); err != nil {
					zerolog.Ctx(ctx).Warn().Err(err).Str("channel_id", channelID).Msg("Failed to update streamed reply")
				} else {
					res.Edits++
				}
			}
		}
		if chunk.FinishReason != "" {
			break
		}
	}

	if err := stream.Err(); err != nil {
		return s.fail(ctx, ref, res, promptTokens, text.String(), provider.Name(), err)
	}

	res.Text = strings.TrimSpace(text.String())
	if res.Text == "" {
		return s.fail(ctx, ref, res, promptTokens, "", provider.Name(), domain.ErrEmptyCompletion)
	}

	// The provider finished, so the answer is billed even if it cannot be shown.
	res.PromptTokens = promptTokens
	res.CompletionTokens = s.tokenizer.CountText(res.Text)

	edited, err := s.deliver(context.WithoutCancel(ctx), ref, res.Text)
	if err != nil {
		return res, &domain.PlatformError{Op: "update_reply", Err: err}
	}
	if edited {
		res.Edits++
	}

	return res, nil
}

// deliver puts the final text on screen. The edit is tried twice; if both fail the
// text is posted as a new message so a stale partial answer is never the last word.
func (s *Streamer) deliver(ctx context.Context, ref MessageRef, text string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, noticeTimeout)
	defer cancel()

	err := s.messenger.UpdateMessage(ctx, ref, text)
	if err == nil {
		return true, nil
	}
	zerolog.Ctx(ctx).Warn().Err(err).Str("channel_id", ref.ChannelID).Msg("Final edit failed, retrying")

	if err = s.messenger.UpdateMessage(ctx, ref, text); err == nil {
		return true, nil
	}
	zerolog.Ctx(ctx).Warn().Err(err).Str("channel_id", ref.ChannelID).Msg("Final edit failed, posting answer instead")

	if _, postErr := s.messenger.PostMessage(ctx, ref.ChannelID, text); postErr != nil {
		return false, errors.Join(err, postErr)
	}
	return false, nil
}

// fail replaces the placeholder with the failure notice. Tokens are only counted when
// at least one fragment was received.
func (s *Streamer) fail(ctx context.Context, ref MessageRef, res StreamResult, promptTokens int, partial, provider string, cause error) (StreamResult, error) {
	if res.Fragments > 0 {
		res.PromptTokens = promptTokens
		res.CompletionTokens = s.tokenizer.CountText(strings.TrimSpace(partial))
	}

	if s.cfg.FailureNotice != "" {
		noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noticeTimeout)
		defer cancel()
		if err := s.messenger.UpdateMessage(noticeCtx, ref, s.cfg.FailureNotice); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("channel_id", ref.ChannelID).Msg("Failed to show failure notice")
		} else {
			res.NoticeShown = true
		}
	}

	var pe *domain.ProviderError
	if errors.As(cause, &pe) {
		return res, cause
	}
	return res, &domain.ProviderError{Provider: provider, Err: cause}
}
