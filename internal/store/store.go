// Package store keeps submitted forms in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/dlovans/formtree/pkg/form"
)

// DefaultDSN is used when no data source is configured.
const DefaultDSN = "file:formtree.db?_pragma=busy_timeout(5000)"

// timeLayout is fixed width so that submitted_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by Get for an unknown submission id.
var ErrNotFound = errors.New("submission not found")

const createTable = `
CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	form_name    TEXT NOT NULL DEFAULT '',
	target       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	values_json  TEXT NOT NULL,
	params_json  TEXT NOT NULL DEFAULT '{}',
	submitted_at TEXT NOT NULL
)`

// Store is a form.Sink backed by sqlite.
type Store struct {
	db *sql.DB
}

var _ form.Sink = (*Store)(nil)

// Open opens the database at dsn and creates the submissions table.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating submissions table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Submit stores sub.
func (s *Store) Submit(ctx context.Context, sub form.Submission) error {
	values, err := json.Marshal(sub.Values)
	if err != nil {
		return fmt.Errorf("encoding values: %w", err)
	}
	params, err := json.Marshal(sub.Params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, form_name, target, status, values_json, params_json, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.FormName, sub.Target, string(sub.Status), string(values), string(params),
		sub.SubmittedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting submission %s: %w", sub.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, form_name, target, status, values_json, params_json, submitted_at FROM submissions`

// Get returns the submission with the given id.
func (s *Store) Get(ctx context.Context, id string) (form.Submission, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	sub, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return form.Submission{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return sub, err
}

// List returns the most recent submissions of a form, newest first. An
// empty formName lists every form.
func (s *Store) List(ctx context.Context, formName string, limit int) ([]form.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectColumns + ` ORDER BY submitted_at DESC LIMIT ?`
	args := []any{limit}
	if formName != "" {
		query = selectColumns + ` WHERE form_name = ? ORDER BY submitted_at DESC LIMIT ?`
		args = []any{formName, limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var out []form.Submission
	for rows.Next() {
		sub, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (form.Submission, error) {
	var (
		sub            form.Submission
		status, at     string
		values, params string
	)
	if err := row.Scan(&sub.ID, &sub.FormName, &sub.Target, &status, &values, &params, &at); err != nil {
		return form.Submission{}, err
	}
	sub.Status = form.Status(status)
	if err := json.Unmarshal([]byte(values), &sub.Values); err != nil {
		return form.Submission{}, fmt.Errorf("decoding values of %s: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(params), &sub.Params); err != nil {
		return form.Submission{}, fmt.Errorf("decoding params of %s: %w", sub.ID, err)
	}
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return form.Submission{}, fmt.Errorf("decoding time of %s: %w", sub.ID, err)
	}
	sub.SubmittedAt = t
	return sub, nil
}
