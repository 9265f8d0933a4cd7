package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Obsidian appends a markdown block per entry to a daily note at
// <vault>/<folder>/YYYY-MM-DD.md.
type Obsidian struct {
	Vault  string
	Folder string

	mu sync.Mutex
}

// NewObsidian creates an Obsidian notifier.
func NewObsidian(vault, folder string) *Obsidian {
	return &Obsidian{Vault: vault, Folder: folder}
}

// NotePath returns the daily note an event is written to.
func (o *Obsidian) NotePath(ev Event) string {
	return filepath.Join(o.Vault, o.Folder, ev.CreatedAt.Format("2006-01-02")+".md")
}

// Notify implements Notifier.
func (o *Obsidian) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	path := o.NotePath(ev)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create note dir: %w", err)
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open note: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	if isNew {
		fmt.Fprintf(&b, "# Questlog %s\n", ev.CreatedAt.Format("2006-01-02"))
	}
	b.WriteString(renderEntry(ev))
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write note: %w", err)
	}
	return nil
}

func renderEntry(ev Event) string {
	var b strings.Builder
	r := ev.Result

	fmt.Fprintf(&b, "\n## %s\n\n", ev.CreatedAt.Format("15:04"))
	if text := strings.TrimSpace(ev.Text); text != "" {
		for _, line := range strings.Split(text, "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		b.WriteString("\n")
	}
	if len(r.ResolvedActions) > 0 {
		fmt.Fprintf(&b, "Actions: %s\n", strings.Join(wikiLinks(r.ResolvedActions), ", "))
	}
	if r.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s (x%.2f)\n", r.Duration, r.Multiplier)
	}
	fmt.Fprintf(&b, "EXP gained: %.2f\n", r.TotalIncrease)

	if r.NodeIncreases != nil && r.NodeIncreases.Len() > 0 {
		b.WriteString("\n")
		for _, label := range r.NodeIncreases.Sorted() {
			fmt.Fprintf(&b, "- [[%s]] +%.2f\n", label, r.NodeIncreases.Get(label))
		}
	}
	for _, up := range r.LevelUps {
		fmt.Fprintf(&b, "- **Level up:** [[%s]] %d -> %d\n", up.Label, up.From, up.To)
	}
	return b.String()
}

func wikiLinks(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = "[[" + l + "]]"
	}
	return out
}
