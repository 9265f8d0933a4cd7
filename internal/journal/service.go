// Package journal is the single point of mutation for a user's graph and
// stats: it serializes entries per user, runs them through the engine,
// persists the outcome and notifies downstream collaborators.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/questlog/internal/engine"
	"github.com/lazypower/questlog/internal/graph"
	"github.com/lazypower/questlog/internal/logger"
	"github.com/lazypower/questlog/internal/notify"
	"github.com/lazypower/questlog/internal/store"
)

// DefaultUser is used when no user id is supplied.
const DefaultUser = "default"

// maxSaveAttempts bounds retries after a version conflict with another writer.
const maxSaveAttempts = 3

// Store is the persistence the service needs.
type Store interface {
	LoadGraph(ctx context.Context, userID string) (*graph.State, error)
	LoadStats(ctx context.Context, userID string) (map[string]engine.NodeStats, error)
	SaveOutcome(ctx context.Context, userID string, baseVersion int64, g *graph.State, stats map[string]engine.NodeStats, entry *store.Entry) error
	RecordEntry(ctx context.Context, e *store.Entry) error
	DeleteNode(ctx context.Context, userID, id string) error
	ClearUser(ctx context.Context, userID string) error
}

// Submission is what a processed entry produced.
type Submission struct {
	Entry  store.Entry
	Result engine.Result
	Stage  engine.Stage
}

// Service processes journal entries.
type Service struct {
	store    Store
	engine   *engine.Engine
	notifier notify.Notifier
	log      *logger.Logger
	locks    userLocks
}

// NewService wires a Service. notifier may be nil.
func NewService(st Store, eng *engine.Engine, notifier notify.Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: st, engine: eng, notifier: notifier, log: log}
}

// Submit processes one entry for userID now.
func (s *Service) Submit(ctx context.Context, userID string, in engine.EntryInput) (*Submission, error) {
	return s.submit(ctx, userID, in, time.Now().UTC())
}

func (s *Service) submit(ctx context.Context, userID string, in engine.EntryInput, at time.Time) (*Submission, error) {
	userID = normalizeUser(userID)
	unlock := s.locks.lock(userID)
	defer unlock()

	entry := store.Entry{
		UserID:    userID,
		Text:      strings.TrimSpace(in.Text),
		Actions:   in.Actions,
		Duration:  strings.TrimSpace(in.Duration),
		CreatedAt: at,
	}

	var (
		out  *engine.Outcome
		base int64
		err  error
	)
	for attempt := 1; ; attempt++ {
		out, base, err = s.process(ctx, userID, in)
		if err != nil {
			if errors.Is(err, engine.ErrEmptyEntry) {
				return nil, err
			}
			return nil, s.recordFailure(ctx, &entry, err)
		}

		entry.ID = ""
		entry.Status = store.StatusPersisted
		entry.Source = out.Result.Source
		entry.TotalIncrease = out.Result.TotalIncrease
		entry.LevelsGained = out.Result.LevelsGained
		if entry.Duration == "" {
			entry.Duration = out.Result.Duration
		}
		if entry.Result, err = json.Marshal(out.Result); err != nil {
			return nil, s.recordFailure(ctx, &entry, fmt.Errorf("encode result: %w", err))
		}

		err = s.store.SaveOutcome(ctx, userID, base, out.Graph, out.Stats, &entry)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrVersionConflict) && attempt < maxSaveAttempts {
			s.log.Warn("journal: graph changed underneath entry, retrying", "user", userID, "attempt", attempt)
			continue
		}
		return nil, s.recordFailure(ctx, &entry, fmt.Errorf("persist: %w", err))
	}
	out.Stage = engine.StagePersisted

	s.log.Info("journal: entry persisted",
		"user", userID,
		"entry", entry.ID,
		"source", entry.Source,
		"total_increase", entry.TotalIncrease,
		"levels_gained", entry.LevelsGained)

	s.notify(ctx, entry, out.Result)
	return &Submission{Entry: entry, Result: out.Result, Stage: out.Stage}, nil
}

// process loads the user's snapshot and runs the engine. It returns the
// graph version the outcome was computed from.
func (s *Service) process(ctx context.Context, userID string, in engine.EntryInput) (*engine.Outcome, int64, error) {
	g, err := s.store.LoadGraph(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("load graph: %w", err)
	}
	if err := g.Validate(); err != nil {
		s.log.Warn("journal: stored graph violates invariants", "user", userID, "error", err)
	}
	stats, err := s.store.LoadStats(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("load stats: %w", err)
	}

	out, err := s.engine.Process(ctx, engine.Snapshot{Graph: g, Stats: stats}, in)
	if err != nil {
		return nil, 0, err
	}
	return out, g.Version, nil
}

// recordFailure keeps the raw text of an entry that could not be applied.
func (s *Service) recordFailure(ctx context.Context, entry *store.Entry, cause error) error {
	s.log.Error("journal: entry failed", "user", entry.UserID, "error", cause)

	entry.ID = ""
	entry.Status = store.StatusFailed
	entry.Error = cause.Error()
	entry.Result = nil
	entry.TotalIncrease = 0
	entry.LevelsGained = 0
	if err := s.store.RecordEntry(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Error("journal: record failed entry", "user", entry.UserID, "error", err)
	}
	return fmt.Errorf("%s: %w", engine.StageFailed, cause)
}

func (s *Service) notify(ctx context.Context, entry store.Entry, result engine.Result) {
	if s.notifier == nil {
		return
	}
	ev := notify.Event{
		EntryID:   entry.ID,
		UserID:    entry.UserID,
		Text:      entry.Text,
		Result:    result,
		CreatedAt: entry.CreatedAt,
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn("journal: notification failed", "user", entry.UserID, "entry", entry.ID, "error", err)
	}
}

// DeleteNode removes a concept for the user, serialized with entries.
func (s *Service) DeleteNode(ctx context.Context, userID, id string) error {
	userID = normalizeUser(userID)
	unlock := s.locks.lock(userID)
	defer unlock()
	return s.store.DeleteNode(ctx, userID, id)
}

// Clear deletes all of the user's data, serialized with entries.
func (s *Service) Clear(ctx context.Context, userID string) error {
	userID = normalizeUser(userID)
	unlock := s.locks.lock(userID)
	defer unlock()
	if err := s.store.ClearUser(ctx, userID); err != nil {
		return err
	}
	s.log.Info("journal: cleared user data", "user", userID)
	return nil
}

func normalizeUser(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return DefaultUser
	}
	return userID
}
