package openai

import (
	"context"
	"fmt"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/openai/openai-go"
)

// GenerateImage creates one 512x512 image and returns its URL
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModelDallE2,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize512x512,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", &domain.ProviderError{Provider: p.name, Err: err}
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &domain.ProviderError{Provider: p.name, Err: fmt.Errorf("no image in response")}
	}
	return resp.Data[0].URL, nil
}
