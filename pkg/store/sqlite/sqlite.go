// Package sqlite implements store.AuditStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jxucoder/llmrelay/pkg/model"
	"github.com/jxucoder/llmrelay/pkg/store"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store manages audit records in SQLite.
type Store struct {
	db *sql.DB
}

var _ store.AuditStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS completions (
			id                TEXT PRIMARY KEY,
			request_id        TEXT NOT NULL DEFAULT '',
			provider          TEXT NOT NULL,
			model             TEXT NOT NULL,
			temperature       REAL NOT NULL DEFAULT 0,
			prompt_chars      INTEGER NOT NULL DEFAULT 0,
			messages          INTEGER NOT NULL DEFAULT 0,
			json_mode         INTEGER NOT NULL DEFAULT 0,
			outcome           TEXT NOT NULL,
			error_kind        TEXT NOT NULL DEFAULT '',
			status            INTEGER NOT NULL DEFAULT 0,
			latency_ms        INTEGER NOT NULL DEFAULT 0,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_completions_created ON completions(created_at);
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddRecord inserts rec. A zero CreatedAt is set to now.
func (s *Store) AddRecord(ctx context.Context, rec *model.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completions (
			id, request_id, provider, model, temperature, prompt_chars, messages, json_mode,
			outcome, error_kind, status, latency_ms,
			prompt_tokens, completion_tokens, total_tokens, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.Provider, rec.Model, rec.Temperature, rec.PromptChars, rec.Messages, rec.JSON,
		string(rec.Outcome), rec.ErrorKind, rec.Status, rec.LatencyMS,
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Usage.TotalTokens,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", rec.ID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, request_id, provider, model, temperature, prompt_chars, messages, json_mode,
		outcome, error_kind, status, latency_ms,
		prompt_tokens, completion_tokens, total_tokens, created_at
	FROM completions`

// GetRecord returns the record with the given id or store.ErrNotFound.
func (s *Store) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	return rec, nil
}

// ListRecords returns up to limit records, newest first.
func (s *Store) ListRecords(ctx context.Context, limit int) ([]*model.Record, error) {
	if limit <= 0 {
		return []*model.Record{}, nil
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	records := []*model.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*model.Record, error) {
	var (
		rec     model.Record
		outcome string
		created string
	)
	err := sc.Scan(
		&rec.ID, &rec.RequestID, &rec.Provider, &rec.Model, &rec.Temperature, &rec.PromptChars, &rec.Messages, &rec.JSON,
		&outcome, &rec.ErrorKind, &rec.Status, &rec.LatencyMS,
		&rec.Usage.PromptTokens, &rec.Usage.CompletionTokens, &rec.Usage.TotalTokens, &created,
	)
	if err != nil {
		return nil, err
	}
	rec.Outcome = model.Outcome(outcome)
	rec.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	return &rec, nil
}
