package llm

import (
	"context"

	"github.com/Rrens/slack-gpt/internal/domain"
)

// Request contains chat completion parameters
type Request struct {
	Model       string
	Messages    []domain.Turn
	MaxTokens   int
	Temperature float64
}

// Response contains a non-streaming completion result
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Chunk is one streamed completion fragment.
// FinishReason is empty until the provider reports the end of the answer.
type Chunk struct {
	Content      string
	FinishReason string
}

// Stream is a lazily consumed sequence of completion fragments
type Stream interface {
	// Next advances to the next fragment, returning false at the end or on error
	Next() bool

	// Current returns the fragment Next advanced to
	Current() Chunk

	// Err returns the error that stopped iteration, if any
	Err() error

	// Close releases the underlying connection
	Close() error
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Complete returns the whole answer in one response
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream returns the answer as a sequence of fragments
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ImageGenerator creates images from a text description
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// BillingSource reports the provider's own month-to-date token count
type BillingSource interface {
	MonthToDateTokens(ctx context.Context) (int, error)
}

// ProviderFactory creates a new provider instance
type ProviderFactory func() Provider
