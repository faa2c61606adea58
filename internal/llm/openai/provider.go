package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// Provider implements llm.Provider for OpenAI and OpenAI-compatible APIs such as DeepSeek
type Provider struct {
	client       openai.Client
	name         string
	apiKey       string
	defaultModel string
	models       []string
}

// Option customizes a Provider
type Option func(*providerOptions)

type providerOptions struct {
	name    string
	baseURL string
	models  []string
	request []option.RequestOption
}

// WithName overrides the registry name, e.g. "deepseek"
func WithName(name string) Option {
	return func(o *providerOptions) { o.name = name }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint
func WithBaseURL(baseURL string) Option {
	return func(o *providerOptions) { o.baseURL = baseURL }
}

// WithModels overrides the advertised model list
func WithModels(models ...string) Option {
	return func(o *providerOptions) { o.models = models }
}

// WithRequestOptions passes raw SDK options to the client
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *providerOptions) { o.request = append(o.request, opts...) }
}

// NewProvider creates a new OpenAI provider
func NewProvider(apiKey, defaultModel string, opts ...Option) *Provider {
	o := providerOptions{
		name: "openai",
		models: []string{
			"gpt-3.5-turbo",
			"gpt-4",
			"gpt-4-turbo",
			"gpt-4o",
			"gpt-4o-mini",
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if defaultModel == "" {
		defaultModel = "gpt-3.5-turbo"
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(120 * time.Second),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	reqOpts = append(reqOpts, o.request...)

	return &Provider{
		client:       openai.NewClient(reqOpts...),
		name:         o.name,
		apiKey:       apiKey,
		defaultModel: defaultModel,
		models:       o.models,
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return p.name
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return p.models
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
	params := p.buildParams(req)
	start := time.Now()

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &domain.ProviderError{Provider: p.name, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.ProviderError{Provider: p.name, Err: fmt.Errorf("no choices in response")}
	}

	return &llm.Response{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: int(resp.Usage.TotalTokens),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// Stream opens a streaming chat completion
func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, &domain.ProviderError{Provider: p.name, Err: err}
	}
	return &chatStream{provider: p.name, stream: stream}, nil
}

func (p *Provider) buildParams(req llm.Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: buildMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	return params
}

func buildMessages(turns []domain.Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	return msgs
}

// chatStream adapts the SDK's SSE stream to llm.Stream
type chatStream struct {
	provider string
	stream   *ssestream.Stream[openai.ChatCompletionChunk]
	current  llm.Chunk
}

func (s *chatStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		s.current = llm.Chunk{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}
		return true
	}
	return false
}

func (s *chatStream) Current() llm.Chunk {
	return s.current
}

func (s *chatStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return &domain.ProviderError{Provider: s.provider, Err: fmt.Errorf("openai streaming error: %w", err)}
	}
	return nil
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
