package llm

import (
	"fmt"
	"sync"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// replyPriming is added once per message list: every reply is primed with the assistant header
const replyPriming = 3

// messageOverhead is the per-message framing cost. Turns carry no name field, so the
// per-name adjustment never applies.
type messageOverhead struct {
	perMessage int
}

var overheads = map[string]messageOverhead{
	"gpt-3.5-turbo-0301": {perMessage: 4},
	"gpt-4-0314":         {perMessage: 3},
}

var modelAliases = map[string]string{
	"gpt-3.5-turbo": "gpt-3.5-turbo-0301",
	"gpt-4":         "gpt-4-0314",
}

// Encoder turns text into model tokens
type Encoder interface {
	Encode(text string) []int
}

// Tokenizer counts the tokens a conversation costs
type Tokenizer interface {
	CountMessages(messages []domain.Turn) int
	CountText(text string) int
}

// TokenCounter applies a model's per-message overhead on top of an Encoder
type TokenCounter struct {
	enc      Encoder
	model    string
	overhead messageOverhead
}

// NewTokenCounter returns a counter for model. Unknown models are rejected.
func NewTokenCounter(model string, enc Encoder) (*TokenCounter, error) {
	if alias, ok := modelAliases[model]; ok {
		model = alias
	}
	oh, ok := overheads[model]
	if !ok {
		return nil, fmt.Errorf("token counting is not implemented for model %s", model)
	}
	return &TokenCounter{enc: enc, model: model, overhead: oh}, nil
}

// Model returns the resolved model name
func (c *TokenCounter) Model() string {
	return c.model
}

// CountMessages counts a message list as sent to the chat endpoint
func (c *TokenCounter) CountMessages(messages []domain.Turn) int {
	n := 0
	for _, m := range messages {
		n += c.overhead.perMessage
		n += len(c.enc.Encode(string(m.Role)))
		n += len(c.enc.Encode(m.Content))
	}
	return n + replyPriming
}

// CountText counts plain text without any overhead
func (c *TokenCounter) CountText(text string) int {
	return len(c.enc.Encode(text))
}

var loaderOnce sync.Once

// TiktokenEncoder is the BPE encoder the OpenAI chat models use
type TiktokenEncoder struct {
	tk *tiktoken.Tiktoken
}

// NewTiktokenEncoder loads the encoding for model from the embedded vocabularies
func NewTiktokenEncoder(model string) (*TiktokenEncoder, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	if alias, ok := modelAliases[model]; ok {
		model = alias
	}

	tk, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tk, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer: %w", err)
		}
	}
	return &TiktokenEncoder{tk: tk}, nil
}

// Encode returns the token ids for text
func (e *TiktokenEncoder) Encode(text string) []int {
	return e.tk.Encode(text, nil, nil)
}
