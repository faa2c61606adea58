package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
)

// Provider implements llm.Provider for Ollama
type Provider struct {
	host         string
	defaultModel string
	client       *http.Client
}

// NewProvider creates a new Ollama provider
func NewProvider(host, defaultModel string) *Provider {
	if defaultModel == "" {
		defaultModel = "llama3"
	}
	return &Provider{
		host:         host,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 300 * time.Second},
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "ollama"
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return []string{
		"llama3",
		"llama3.1",
		"llama3.2",
		"mistral",
		"mixtral",
		"phi3",
		"qwen2",
	}
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// IsConfigured checks if provider has valid credentials
func (p *Provider) IsConfigured() bool {
	return p.host != ""
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error"`
}

// Complete sends the conversation and waits for the whole answer
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()

	resp, err := p.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return &llm.Response{
		Content:    chatResp.Message.Content,
		Model:      p.modelFor(req),
		TokensUsed: chatResp.PromptEvalCount + chatResp.EvalCount,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// Stream opens a streaming chat; Ollama answers with one JSON object per line
func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	resp, err := p.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &lineStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

func (p *Provider) modelFor(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *Provider) post(ctx context.Context, req llm.Request, stream bool) (*http.Response, error) {
	chatReq := chatRequest{
		Model:  p.modelFor(req),
		Stream: stream,
	}
	for _, t := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, chatMessage{Role: string(t.Role), Content: t.Content})
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		chatReq.Options = map[string]any{}
		if req.Temperature > 0 {
			chatReq.Options["temperature"] = req.Temperature
		}
		if req.MaxTokens > 0 {
			chatReq.Options["num_predict"] = req.MaxTokens
		}
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("request failed: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("ollama returned status %d", resp.StatusCode)}
	}
	return resp, nil
}

type lineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	current llm.Chunk
	err     error
	done    bool
}

func (s *lineStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp chatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			s.err = &domain.ProviderError{Provider: "ollama", Err: fmt.Errorf("failed to decode stream line: %w", err)}
			return false
		}
		if resp.Error != "" {
			s.err = &domain.ProviderError{Provider: "ollama", Err: fmt.Errorf("ollama stream error: %s", resp.Error)}
			return false
		}

		s.current = llm.Chunk{Content: resp.Message.Content}
		if resp.Done {
			s.done = true
			s.current.FinishReason = resp.DoneReason
			if s.current.FinishReason == "" {
				s.current.FinishReason = "stop"
			}
		}
		return true
	}
	if err := s.scanner.Err(); err != nil {
		s.err = &domain.ProviderError{Provider: "ollama", Err: fmt.Errorf("ollama streaming error: %w", err)}
	}
	return false
}

func (s *lineStream) Current() llm.Chunk {
	return s.current
}

func (s *lineStream) Err() error {
	return s.err
}

func (s *lineStream) Close() error {
	return s.body.Close()
}
