// Package gateway asks one of the configured vision providers to analyze a
// document. It owns credential rotation, provider dispatch, and the
// fixed-interval retry shell around the network call.
package gateway

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/credpool"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/resilience"
)

// maxImagesPerRequest caps how many page images are embedded in one call.
const maxImagesPerRequest = 5

// ErrNoCredentials means the credential pool is empty. It is a configuration
// error: the current job fails outright, nothing is retried.
var ErrNoCredentials = eris.New("gateway: no AI provider configured")

// Caller performs one provider-specific analysis call with a given key.
type Caller interface {
	Provider() model.Provider
	Analyze(ctx context.Context, key string, content model.Content, documentName string) (string, *model.TokenUsage, error)
}

// Gateway routes analysis requests to providers in round-robin credential
// order and retries transient failures on fixed intervals.
type Gateway struct {
	pool        *credpool.Pool
	callers     map[model.Provider]Caller
	policy      resilience.Policy
	callTimeout time.Duration
}

// New builds a Gateway with the standard gemini, openai, and anthropic callers.
func New(pool *credpool.Pool, cfg config.GatewayConfig) *Gateway {
	return NewWithCallers(pool, cfg,
		newGeminiCaller(cfg),
		newOpenAICaller(cfg),
		newAnthropicCaller(cfg),
	)
}

// NewWithCallers builds a Gateway with explicit callers. Used by tests.
func NewWithCallers(pool *credpool.Pool, cfg config.GatewayConfig, callers ...Caller) *Gateway {
	byProvider := make(map[model.Provider]Caller, len(callers))
	for _, c := range callers {
		byProvider[c.Provider()] = c
	}

	return &Gateway{
		pool:    pool,
		callers: byProvider,
		policy: resilience.Policy{
			MaxAttempts:      cfg.MaxAttempts,
			RateLimitBackoff: time.Duration(cfg.RateLimitBackoffSecs) * time.Second,
			TransportBackoff: time.Duration(cfg.TransportBackoffSecs) * time.Second,
		},
		callTimeout: time.Duration(cfg.CallTimeoutSecs) * time.Second,
	}
}

type analysis struct {
	text  string
	usage *model.TokenUsage
}

// Analyze obtains the next credential, dispatches to its provider's caller,
// and returns the model's raw text plus token usage. Transient failures
// (rate limits, transport errors, timeouts) are retried up to the attempt
// budget; exhaustion surfaces as the job's failure, never escalated further.
func (g *Gateway) Analyze(ctx context.Context, content model.Content, documentName string) (string, *model.TokenUsage, error) {
	entry, ok := g.pool.Next()
	if !ok {
		return "", nil, ErrNoCredentials
	}

	caller, ok := g.callers[entry.Provider]
	if !ok {
		return "", nil, eris.Errorf("gateway: no caller for provider %q", entry.Provider)
	}

	zap.L().Info("analyzing document",
		zap.String("document", documentName),
		zap.String("provider", string(entry.Provider)),
		zap.Int("pages", content.PageCount),
		zap.String("extraction_method", content.ExtractionMethod),
	)

	policy := g.policy
	policy.OnRetry = resilience.RetryLogger(string(entry.Provider), "analyze")

	res, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (analysis, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()

		text, usage, err := caller.Analyze(callCtx, entry.Key, content, documentName)
		if err != nil {
			return analysis{}, err
		}
		return analysis{text: text, usage: usage}, nil
	})
	if err != nil {
		return "", nil, eris.Wrapf(err, "gateway: %s analysis failed", entry.Provider)
	}

	return res.text, res.usage, nil
}
