// Package store persists finished extraction results. The job registry is
// deliberately in-memory; this is the durable record for the CLI path and
// for anyone who wants completed results to survive a restart.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
)

// SavedResult is one persisted extraction outcome.
type SavedResult struct {
	ID        string                  `json:"id"`
	JobID     string                  `json:"job_id"`
	FileName  string                  `json:"file_name"`
	Result    *model.ExtractionResult `json:"result"`
	CreatedAt time.Time               `json:"created_at"`
}

// Store defines the persistence interface for extraction results.
type Store interface {
	SaveResult(ctx context.Context, jobID, fileName string, result *model.ExtractionResult) (string, error)
	GetResult(ctx context.Context, id string) (*SavedResult, error)
	ListResults(ctx context.Context, limit int) ([]SavedResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
