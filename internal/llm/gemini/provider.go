package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/slack-gpt/internal/config"
	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) AvailableModels() []string {
	return []string{
		"gemini-2.5-flash",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	}
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	client, cs, last, err := p.startChat(ctx, req)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	start := time.Now()
	resp, err := cs.SendMessage(ctx, last)
	if err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("gemini generation error: %w", err)}
	}

	output, _ := candidateText(resp)
	if output == "" {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("empty response from gemini")}
	}

	tokensUsed := 0
	if resp.UsageMetadata != nil {
		tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &llm.Response{
		Content:    output,
		Model:      p.modelFor(req),
		TokensUsed: tokensUsed,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	client, cs, last, err := p.startChat(ctx, req)
	if err != nil {
		return nil, err
	}
	return &contentStream{client: client, iter: cs.SendMessageStream(ctx, last)}, nil
}

func (p *Provider) modelFor(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.DefaultModel()
}

// startChat loads every turn but the last into the chat history; the last user turn is what gets sent
func (p *Provider) startChat(ctx context.Context, req llm.Request) (*genai.Client, *genai.ChatSession, genai.Text, error) {
	if !p.IsConfigured() {
		return nil, nil, "", &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("gemini provider is not configured (missing API key)")}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, nil, "", &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("failed to create gemini client: %w", err)}
	}

	model := client.GenerativeModel(p.modelFor(req))
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	system, history, last := splitTurns(req.Messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history
	return client, cs, genai.Text(last), nil
}

func splitTurns(turns []domain.Turn) (string, []*genai.Content, string) {
	var system []string
	var history []*genai.Content
	var last string

	for i, t := range turns {
		if t.Role == domain.RoleSystem {
			system = append(system, t.Content)
			continue
		}
		if i == len(turns)-1 && t.Role == domain.RoleUser {
			last = t.Content
			continue
		}
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}
	return strings.Join(system, "\n"), history, last
}

func candidateText(resp *genai.GenerateContentResponse) (string, string) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ""
	}
	cand := resp.Candidates[0]

	var output strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				output.WriteString(string(text))
			}
		}
	}

	finish := ""
	if cand.FinishReason != genai.FinishReasonUnspecified {
		finish = cand.FinishReason.String()
	}
	return output.String(), finish
}

type contentStream struct {
	client  *genai.Client
	iter    *genai.GenerateContentResponseIterator
	current llm.Chunk
	err     error
}

func (s *contentStream) Next() bool {
	if s.err != nil {
		return false
	}
	resp, err := s.iter.Next()
	if errors.Is(err, iterator.Done) {
		return false
	}
	if err != nil {
		s.err = &domain.ProviderError{Provider: "gemini", Err: fmt.Errorf("gemini streaming error: %w", err)}
		return false
	}
	text, finish := candidateText(resp)
	s.current = llm.Chunk{Content: text, FinishReason: finish}
	return true
}

func (s *contentStream) Current() llm.Chunk {
	return s.current
}

func (s *contentStream) Err() error {
	return s.err
}

func (s *contentStream) Close() error {
	return s.client.Close()
}
