package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/usage"
	"github.com/openai/openai-go/option"
)

type usageResponse struct {
	Data []struct {
		ContextTokens   int `json:"n_context_tokens_total"`
		GeneratedTokens int `json:"n_generated_tokens_total"`
	} `json:"data"`
}

// MonthToDateTokens sums the account's daily usage from the 1st of the current UTC month to today
func (p *Provider) MonthToDateTokens(ctx context.Context) (int, error) {
	return p.tokensBetween(ctx, usage.MonthDays(time.Now().UTC()))
}

func (p *Provider) tokensBetween(ctx context.Context, days []string) (int, error) {
	total := 0
	for _, day := range days {
		var res usageResponse
		if err := p.client.Get(ctx, "usage", nil, &res, option.WithQuery("date", day)); err != nil {
			return 0, &domain.ProviderError{Provider: p.name, Err: fmt.Errorf("failed to fetch usage for %s: %w", day, err)}
		}
		for _, d := range res.Data {
			total += d.ContextTokens + d.GeneratedTokens
		}
	}
	return total, nil
}
