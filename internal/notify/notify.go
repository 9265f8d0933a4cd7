// Package notify delivers processed journal entries to downstream
// collaborators. Delivery failures are reported to the caller, which logs
// them; they never undo a persisted entry.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/lazypower/questlog/internal/engine"
)

// Event is one persisted entry.
type Event struct {
	EntryID   string        `json:"entry_id"`
	UserID    string        `json:"user_id"`
	Text      string        `json:"text"`
	Result    engine.Result `json:"result"`
	CreatedAt time.Time     `json:"created_at"`
}

// Notifier receives persisted entries.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
