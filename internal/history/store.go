package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/hmrnsp/vid2mp3/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Record is one finished conversion as persisted on disk.
type Record struct {
	ID          int64     `json:"id"`
	JobID       string    `json:"jobId"`
	SourcePath  string    `json:"sourcePath"`
	OutputPath  string    `json:"outputPath"`
	State       string    `json:"state"`
	ErrorKind   string    `json:"errorKind,omitempty"`
	ErrorDetail string    `json:"errorDetail,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Store keeps the conversion history in a local SQLite database.
type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

// Open opens (or creates) the history database and applies migrations.
func Open(dbPath string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// WAL allows concurrent reads but only one writer.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run history migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one terminal job. Only completed and failed jobs are
// meaningful here; non-terminal states are rejected.
func (s *Store) Append(job domain.Job) error {
	if !job.State.IsTerminal() {
		return fmt.Errorf("job %s is not terminal: %s", job.ID, job.State)
	}

	_, err := s.db.Exec(`
		INSERT INTO conversions
			(job_id, source_path, output_path, state, error_kind, error_detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.SourcePath,
		job.OutputPath,
		string(job.State),
		string(job.ErrorKind),
		job.ErrorDetail,
		job.StartedAt.Unix(),
		job.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append conversion record: %w", err)
	}
	return nil
}

// Recent returns the newest records first, capped at limit.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, job_id, source_path, output_path, state, error_kind, error_detail, started_at, finished_at
		FROM conversions
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversion history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var startedAt, finishedAt int64
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.SourcePath,
			&rec.OutputPath,
			&rec.State,
			&rec.ErrorKind,
			&rec.ErrorDetail,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversion record: %w", err)
		}
		rec.StartedAt = time.Unix(startedAt, 0).UTC()
		rec.FinishedAt = time.Unix(finishedAt, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
