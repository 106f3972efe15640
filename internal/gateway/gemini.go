package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/resilience"
	"github.com/sells-group/billscan/pkg/gemini"
)

type geminiCaller struct {
	cfg config.GatewayConfig
}

func newGeminiCaller(cfg config.GatewayConfig) *geminiCaller {
	return &geminiCaller{cfg: cfg}
}

func (c *geminiCaller) Provider() model.Provider {
	return model.ProviderGemini
}

func (c *geminiCaller) Analyze(ctx context.Context, key string, content model.Content, documentName string) (string, *model.TokenUsage, error) {
	parts := []gemini.Part{{Text: auditPrompt(documentName, content.PageCount)}}

	for i, img := range content.Images {
		if i >= maxImagesPerRequest {
			break
		}
		parts = append(parts,
			gemini.Part{Text: fmt.Sprintf("--- VISUAL DATA FOR PAGE %d ---", i+1)},
			gemini.Part{InlineData: &gemini.InlineData{MIMEType: "image/jpeg", Data: img}},
		)
	}

	if content.Text != "" {
		parts = append(parts, gemini.Part{Text: "EXTRACTED TEXT CONTEXT:\n" + content.Text})
	}

	client := gemini.NewClient(key,
		gemini.WithBaseURL(c.cfg.GeminiBaseURL),
		gemini.WithModel(c.cfg.GeminiModel),
	)

	resp, err := client.GenerateContent(ctx, gemini.GenerateRequest{
		Contents: []gemini.Content{{Parts: parts}},
	})
	if err != nil {
		var apiErr *gemini.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return "", nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return "", nil, err
	}

	text := resp.Text()
	if text == "" {
		return "", nil, eris.New("gemini: empty response")
	}

	return text, &model.TokenUsage{
		PromptTokens: resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		Model:        c.cfg.GeminiModel,
	}, nil
}
