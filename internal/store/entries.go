package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry statuses.
const (
	StatusPersisted = "persisted"
	StatusFailed    = "failed"
)

// Entry is one submitted journal entry and what it earned.
type Entry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Text          string          `json:"text"`
	Actions       []string        `json:"actions"`
	Duration      string          `json:"duration,omitempty"`
	Status        string          `json:"status"`
	Source        string          `json:"source,omitempty"`
	TotalIncrease float64         `json:"total_increase"`
	LevelsGained  int             `json:"levels_gained"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RecordEntry stores an entry outside a graph update, e.g. one that failed
// before anything could be persisted.
func (db *DB) RecordEntry(ctx context.Context, e *Entry) error {
	return insertEntry(ctx, db, e)
}

func insertEntry(ctx context.Context, q querier, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusPersisted
	}
	actions := e.Actions
	if actions == nil {
		actions = []string{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	var result, errText sql.NullString
	if len(e.Result) > 0 {
		result = sql.NullString{String: string(e.Result), Valid: true}
	}
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO journal_entries
			(id, user_id, text, actions, duration, status, source, total_increase, levels_gained, result_json, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Text, string(actionsJSON), e.Duration, e.Status, e.Source,
		e.TotalIncrease, e.LevelsGained, result, errText, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

const entryColumns = `id, user_id, text, actions, duration, status, source, total_increase, levels_gained, result_json, error, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e           Entry
		actionsJSON string
		result      sql.NullString
		errText     sql.NullString
		created     int64
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Text, &actionsJSON, &e.Duration, &e.Status, &e.Source,
		&e.TotalIncrease, &e.LevelsGained, &result, &errText, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionsJSON), &e.Actions); err != nil {
		return nil, fmt.Errorf("entry %s actions: %w", e.ID, err)
	}
	if result.Valid {
		e.Result = json.RawMessage(result.String)
	}
	e.Error = errText.String
	e.CreatedAt = time.UnixMilli(created).UTC()
	return &e, nil
}

// GetEntry returns one of the user's entries.
func (db *DB) GetEntry(ctx context.Context, userID, id string) (*Entry, error) {
	row := db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE user_id = ? AND id = ?`, userID, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// ListEntries returns the user's most recent entries, newest first.
func (db *DB) ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM journal_entries
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// CountEntries returns how many entries the user has, by status.
func (db *DB) CountEntries(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM journal_entries WHERE user_id = ? GROUP BY status
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
