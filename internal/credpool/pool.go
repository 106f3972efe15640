// Package credpool rotates API credentials across the configured vision
// providers. Selection is strict round-robin in load order: no weighting, no
// health tracking, every entry is issued with equal frequency.
package credpool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
)

// Entry pairs a provider tag with one access key. Immutable once loaded.
type Entry struct {
	Provider model.Provider
	Key      string
}

// Pool issues credentials in round-robin order. Safe for concurrent use;
// the cursor is the only shared mutable state.
type Pool struct {
	mu      sync.Mutex
	entries []Entry
	cursor  int
}

// Load builds a pool from the configured credential slots. Providers are
// scanned in a fixed order (gemini, openai, anthropic); within a provider the
// primary key comes first, then fallbacks in source order.
func Load(cfg config.ProvidersConfig) *Pool {
	var entries []Entry

	add := func(provider model.Provider, pc config.ProviderConfig) {
		if pc.Key != "" {
			entries = append(entries, Entry{Provider: provider, Key: pc.Key})
		}
		for _, key := range pc.FallbackKeys {
			if key != "" {
				entries = append(entries, Entry{Provider: provider, Key: key})
			}
		}
	}

	add(model.ProviderGemini, cfg.Gemini)
	add(model.ProviderOpenAI, cfg.OpenAI)
	add(model.ProviderAnthropic, cfg.Anthropic)

	zap.L().Info("loaded credential pool", zap.Int("keys", len(entries)))

	return &Pool{entries: entries}
}

// Next returns the entry at the cursor and advances it modulo the pool size.
// ok is false when no credentials are configured; callers must treat that as
// a hard failure for the current job, not a retryable condition.
func (p *Pool) Next() (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return Entry{}, false
	}

	entry := p.entries[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.entries)
	return entry, true
}

// Size returns the number of loaded credentials.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
