package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const defaultMaxTokens = 1024

// Provider implements llm.Provider for Anthropic
type Provider struct {
	client       anthropic.Client
	apiKey       string
	defaultModel string
}

// NewProvider creates a new Anthropic provider
func NewProvider(apiKey, defaultModel string, opts ...option.RequestOption) *Provider {
	if defaultModel == "" {
		defaultModel = "claude-3-5-haiku-latest"
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(120 * time.Second),
	}, opts...)

	return &Provider{
		client:       anthropic.NewClient(reqOpts...),
		apiKey:       apiKey,
		defaultModel: defaultModel,
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "anthropic"
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return []string{
		"claude-3-5-haiku-latest",
		"claude-3-5-sonnet-latest",
		"claude-3-7-sonnet-latest",
		"claude-sonnet-4-20250514",
	}
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// IsConfigured checks if provider has valid credentials
func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// Complete sends the conversation and waits for the whole answer
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()

	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: err}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("no text in response")}
	}

	return &llm.Response{
		Content:    text.String(),
		Model:      string(msg.Model),
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// Stream opens a streaming message
func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, &domain.ProviderError{Provider: p.Name(), Err: err}
	}
	return &messageStream{stream: stream}, nil
}

// buildParams moves system turns into the system field; Anthropic only accepts user and assistant messages
func (p *Provider) buildParams(req llm.Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	for _, t := range req.Messages {
		switch t.Role {
		case domain.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: t.Content})
		case domain.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return params
}

// messageStream adapts the SDK's event stream to llm.Stream.
// Only text deltas and the final stop reason surface as chunks.
type messageStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	current llm.Chunk
}

func (s *messageStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok {
				s.current = llm.Chunk{Content: d.Text}
				return true
			}
		case anthropic.MessageDeltaEvent:
			reason := string(variant.Delta.StopReason)
			if reason == "" {
				reason = "end_turn"
			}
			s.current = llm.Chunk{FinishReason: reason}
			return true
		}
	}
	return false
}

func (s *messageStream) Current() llm.Chunk {
	return s.current
}

func (s *messageStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return &domain.ProviderError{Provider: "anthropic", Err: fmt.Errorf("anthropic streaming error: %w", err)}
	}
	return nil
}

func (s *messageStream) Close() error {
	return s.stream.Close()
}
