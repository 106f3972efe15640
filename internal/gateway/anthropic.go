package gateway

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/resilience"
	"github.com/sells-group/billscan/pkg/anthropic"
)

type anthropicCaller struct {
	cfg config.GatewayConfig
	// newClient is swappable so tests can avoid the real SDK transport.
	newClient func(key string) anthropic.Client
}

func newAnthropicCaller(cfg config.GatewayConfig) *anthropicCaller {
	return &anthropicCaller{cfg: cfg, newClient: anthropic.NewClient}
}

func (c *anthropicCaller) Provider() model.Provider {
	return model.ProviderAnthropic
}

func (c *anthropicCaller) Analyze(ctx context.Context, key string, content model.Content, documentName string) (string, *model.TokenUsage, error) {
	var parts []anthropic.ContentPart
	for i, img := range content.Images {
		if i >= maxImagesPerRequest {
			break
		}
		parts = append(parts, anthropic.ContentPart{
			Type:      "image",
			MediaType: "image/jpeg",
			Data:      img,
		})
	}

	prompt := auditPrompt(documentName, content.PageCount)
	if content.Text != "" {
		prompt += "\n\nTEXT CONTEXT:\n" + content.Text
	}
	parts = append(parts, anthropic.ContentPart{Type: "text", Text: prompt})

	resp, err := c.newClient(key).CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.cfg.AnthropicModel,
		MaxTokens: c.cfg.MaxTokens,
		Content:   parts,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return "", nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return "", nil, err
	}

	return resp.Text, &model.TokenUsage{
		PromptTokens: resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Model:        c.cfg.AnthropicModel,
	}, nil
}
