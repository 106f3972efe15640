package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/billscan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS results (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	result     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_results_job_id ON results(job_id);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, jobID, fileName string, result *model.ExtractionResult) (string, error) {
	id := uuid.New().String()

	data, err := json.Marshal(result)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, job_id, file_name, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, jobID, fileName, string(data), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert result")
	}

	return id, nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*SavedResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, file_name, result, created_at FROM results WHERE id = ?`, id)

	saved, err := scanResult(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: get result %s", id)
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]SavedResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, file_name, result, created_at FROM results ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var out []SavedResult
	for rows.Next() {
		saved, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *saved)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

func scanResult(scan func(...any) error) (*SavedResult, error) {
	var saved SavedResult
	var data string
	if err := scan(&saved.ID, &saved.JobID, &saved.FileName, &data, &saved.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &saved.Result); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal result")
	}
	return &saved, nil
}
