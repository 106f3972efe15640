package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS results (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_results_job_id ON results(job_id);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, jobID, fileName string, result *model.ExtractionResult) (string, error) {
	id := uuid.New().String()

	data, err := json.Marshal(result)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (id, job_id, file_name, result, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, jobID, fileName, data, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert result")
	}

	return id, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, id string) (*SavedResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, job_id, file_name, result, created_at FROM results WHERE id = $1`, id)

	saved, err := scanPgResult(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: get result %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan result")
	}
	return saved, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, limit int) ([]SavedResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, file_name, result, created_at FROM results ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []SavedResult
	for rows.Next() {
		saved, err := scanPgResult(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		out = append(out, *saved)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate results")
}

func scanPgResult(scan func(...any) error) (*SavedResult, error) {
	var saved SavedResult
	var data []byte
	if err := scan(&saved.ID, &saved.JobID, &saved.FileName, &data, &saved.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &saved.Result); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal result")
	}
	return &saved, nil
}
