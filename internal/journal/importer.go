package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lazypower/questlog/internal/engine"
)

// Record is one line of a JSONL import file.
//
//	{"text": "Ran 5k", "duration": "30 mins"}
//	{"actions": ["Stretch", "Breathe"], "date": "2026-02-28T07:00:00Z"}
type Record struct {
	Text     string             `json:"text"`
	Actions  []string           `json:"actions,omitempty"`
	Weights  map[string]float64 `json:"weights,omitempty"`
	Duration string             `json:"duration,omitempty"`
	Date     time.Time          `json:"date"`
}

// LineError reports a line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// ImportReport summarizes an import run.
type ImportReport struct {
	Imported      int         `json:"imported"`
	Empty         int         `json:"empty"`
	Failed        int         `json:"failed"`
	Malformed     []LineError `json:"-"`
	TotalIncrease float64     `json:"total_increase"`
	LevelsGained  int         `json:"levels_gained"`
}

// ParseRecords reads JSONL records. Blank lines are skipped; undecodable
// lines are returned as LineErrors and do not stop the scan.
func ParseRecords(r io.Reader) ([]Record, []LineError, error) {
	var (
		records   []Record
		malformed []LineError
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB line buffer

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			malformed = append(malformed, LineError{Line: line, Err: err})
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, malformed, fmt.Errorf("scan import: %w", err)
	}
	return records, malformed, nil
}

// Import submits every record in r for userID, in file order. Records with
// neither text nor actions are counted as empty; entries that fail are
// counted and the import continues. Cancelling ctx stops the import.
func (s *Service) Import(ctx context.Context, userID string, r io.Reader) (*ImportReport, error) {
	records, malformed, err := ParseRecords(r)
	report := &ImportReport{Malformed: malformed}
	if err != nil {
		return report, err
	}
	for _, le := range malformed {
		s.log.Warn("import: skipping malformed line", "line", le.Line, "error", le.Err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		at := rec.Date.UTC()
		if rec.Date.IsZero() {
			at = time.Now().UTC()
		}
		sub, err := s.submit(ctx, userID, engine.EntryInput{
			Text:          rec.Text,
			Actions:       rec.Actions,
			ActionWeights: rec.Weights,
			Duration:      rec.Duration,
		}, at)
		switch {
		case errors.Is(err, engine.ErrEmptyEntry):
			report.Empty++
		case err != nil:
			report.Failed++
		default:
			report.Imported++
			report.TotalIncrease += sub.Result.TotalIncrease
			report.LevelsGained += sub.Result.LevelsGained
		}
	}
	s.log.Info("import: done", "user", normalizeUser(userID), "imported", report.Imported,
		"empty", report.Empty, "failed", report.Failed, "malformed", len(report.Malformed))
	return report, nil
}
