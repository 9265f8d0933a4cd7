package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/questlog/internal/engine"
)

func sampleEvent() Event {
	inc := engine.NewAmounts()
	inc.Add("Coding", 2)
	inc.Add("Engineering", 1.6)
	return Event{
		EntryID: "e-1",
		UserID:  "default",
		Text:    "Wrote the parser\nand its tests",
		Result: engine.Result{
			TotalIncrease:   3.6,
			LevelsGained:    1,
			NodeIncreases:   inc,
			ResolvedActions: []string{"Coding"},
			LevelUps:        []engine.LevelUp{{Label: "Coding", From: 1, To: 2}},
			Multiplier:      2,
			Duration:        "1 hour",
			Source:          engine.SourceAI,
		},
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestWebhookPostsEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), sampleEvent())
	require.NoError(t, err)

	assert.Equal(t, "e-1", got["entry_id"])
	result, ok := got["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3.6, result["total_increase"])
	assert.Equal(t, map[string]any{"Coding": 2.0, "Engineering": 1.6}, result["node_increases"])
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, 0).Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestObsidianAppendsDailyNote(t *testing.T) {
	vault := t.TempDir()
	o := NewObsidian(vault, "Journal")
	ev := sampleEvent()

	require.NoError(t, o.Notify(context.Background(), ev))
	ev.EntryID = "e-2"
	ev.CreatedAt = ev.CreatedAt.Add(time.Hour)
	require.NoError(t, o.Notify(context.Background(), ev))

	path := filepath.Join(vault, "Journal", "2026-03-01.md")
	assert.Equal(t, path, o.NotePath(ev))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	note := string(data)

	assert.Equal(t, 1, strings.Count(note, "# Questlog 2026-03-01"))
	assert.Contains(t, note, "## 09:30")
	assert.Contains(t, note, "## 10:30")
	assert.Contains(t, note, "> and its tests")
	assert.Contains(t, note, "Actions: [[Coding]]")
	assert.Contains(t, note, "- [[Coding]] +2.00")
	assert.Contains(t, note, "**Level up:** [[Coding]] 1 -> 2")
	assert.Less(t, strings.Index(note, "[[Coding]] +"), strings.Index(note, "[[Engineering]] +"))
}

type failing struct{ err error }

func (f failing) Notify(context.Context, Event) error { return f.err }

type counting struct{ n *int }

func (c counting) Notify(context.Context, Event) error { *c.n++; return nil }

func TestMultiJoinsErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	m := Multi{failing{boom}, nil, counting{&calls}}

	err := m.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Multi{}.Notify(context.Background(), sampleEvent()))
}
