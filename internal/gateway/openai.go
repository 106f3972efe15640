package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/resilience"
	"github.com/sells-group/billscan/pkg/openai"
)

type openaiCaller struct {
	cfg config.GatewayConfig
}

func newOpenAICaller(cfg config.GatewayConfig) *openaiCaller {
	return &openaiCaller{cfg: cfg}
}

func (c *openaiCaller) Provider() model.Provider {
	return model.ProviderOpenAI
}

func (c *openaiCaller) Analyze(ctx context.Context, key string, content model.Content, documentName string) (string, *model.TokenUsage, error) {
	parts := []openai.ContentPart{{Type: "text", Text: auditPrompt(documentName, content.PageCount)}}

	for i, img := range content.Images {
		if i >= maxImagesPerRequest {
			break
		}
		parts = append(parts,
			openai.ContentPart{Type: "text", Text: fmt.Sprintf("--- PAGE %d ---", i+1)},
			openai.ContentPart{Type: "image_url", ImageURL: &openai.ImageURL{
				URL: "data:image/jpeg;base64," + img,
			}},
		)
	}

	if content.Text != "" {
		parts = append(parts, openai.ContentPart{Type: "text", Text: "TEXT CONTEXT:\n" + content.Text})
	}

	client := openai.NewClient(key,
		openai.WithBaseURL(c.cfg.OpenAIBaseURL),
		openai.WithModel(c.cfg.OpenAIModel),
	)

	maxTokens := c.cfg.MaxTokens
	resp, err := client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.OpenAIModel,
		Messages: []openai.Message{
			{Role: "system", Content: "You are a JSON-only extraction API."},
			{Role: "user", Content: parts},
		},
		MaxTokens:      &maxTokens,
		ResponseFormat: &openai.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return "", nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return "", nil, err
	}

	if len(resp.Choices) == 0 {
		return "", nil, eris.New("openai: no choices in response")
	}

	return resp.Choices[0].Message.Content, &model.TokenUsage{
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
		Model:        c.cfg.OpenAIModel,
	}, nil
}
