package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/questlog/internal/engine"
	"github.com/lazypower/questlog/internal/graph"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LoadGraph reads the user's concept graph. A user with no data gets an
// empty graph at version 0.
func (db *DB) LoadGraph(ctx context.Context, userID string) (*graph.State, error) {
	return loadGraph(ctx, db, userID)
}

func loadGraph(ctx context.Context, q querier, userID string) (*graph.State, error) {
	g := graph.New()

	err := q.QueryRowContext(ctx, `SELECT version FROM graph_meta WHERE user_id = ?`, userID).Scan(&g.Version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load graph version: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, label, node_type, created_at, updated_at
		FROM concept_nodes WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	for rows.Next() {
		var n graph.Node
		var typ string
		var created, updated int64
		if err := rows.Scan(&n.ID, &n.Label, &typ, &created, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if n.Type, err = graph.ParseNodeType(typ); err != nil {
			rows.Close()
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		n.CreatedAt = time.UnixMilli(created).UTC()
		n.UpdatedAt = time.UnixMilli(updated).UTC()
		g.Nodes[n.ID] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT source, target, weight FROM concept_edges WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.Source, &e.Target, &e.Weight); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		g.Edges[e.ID()] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return g, nil
}

// LoadStats returns the user's per-label progression.
func (db *DB) LoadStats(ctx context.Context, userID string) (map[string]engine.NodeStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT label, experience, level FROM node_stats WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]engine.NodeStats)
	for rows.Next() {
		var (
			label string
			st    engine.NodeStats
		)
		if err := rows.Scan(&label, &st.Experience, &st.Level); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[label] = st
	}
	return stats, rows.Err()
}

// SaveOutcome writes the post-entry graph, the stats and the entry record in
// one transaction. baseVersion is the version the outcome was computed from;
// if the stored version differs, nothing is written and ErrVersionConflict is
// returned. Every successful save advances the stored version to
// baseVersion+1, stats-only outcomes included, and g.Version follows it.
func (db *DB) SaveOutcome(ctx context.Context, userID string, baseVersion int64, g *graph.State, stats map[string]engine.NodeStats, entry *Entry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM graph_meta WHERE user_id = ?`, userID).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read graph version: %w", err)
	}
	if stored != baseVersion {
		return fmt.Errorf("%w: stored %d, computed from %d", ErrVersionConflict, stored, baseVersion)
	}

	now := time.Now().UnixMilli()
	next := baseVersion + 1
	if err := saveGraph(ctx, tx, userID, g, next, now); err != nil {
		return err
	}
	if err := saveStats(ctx, tx, userID, stats, now); err != nil {
		return err
	}
	if entry != nil {
		entry.UserID = userID
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	g.Version = next
	return nil
}

func saveGraph(ctx context.Context, q querier, userID string, g *graph.State, version, now int64) error {
	for _, n := range g.SortedNodes() {
		_, err := q.ExecContext(ctx, `
			INSERT INTO concept_nodes (user_id, id, label, norm_label, node_type, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, id) DO UPDATE SET
				node_type = excluded.node_type,
				updated_at = excluded.updated_at
		`, userID, n.ID, n.Label, graph.Normalize(n.Label), n.Type.String(), millis(n.CreatedAt, now), millis(n.UpdatedAt, now))
		if err != nil {
			return fmt.Errorf("save node %s: %w", n.ID, err)
		}
	}
	for _, e := range g.SortedEdges() {
		_, err := q.ExecContext(ctx, `
			INSERT INTO concept_edges (user_id, source, target, weight)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, source, target) DO UPDATE SET weight = excluded.weight
		`, userID, e.Source, e.Target, e.Weight)
		if err != nil {
			return fmt.Errorf("save edge %s: %w", e.ID(), err)
		}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO graph_meta (user_id, version, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at
	`, userID, version, now)
	if err != nil {
		return fmt.Errorf("save graph version: %w", err)
	}
	return nil
}

func saveStats(ctx context.Context, q querier, userID string, stats map[string]engine.NodeStats, now int64) error {
	for label, st := range stats {
		level := st.Level
		if level < 1 {
			level = 1
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO node_stats (user_id, label, experience, level, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, label) DO UPDATE SET
				experience = excluded.experience,
				level = excluded.level,
				updated_at = excluded.updated_at
			WHERE node_stats.experience <> excluded.experience OR node_stats.level <> excluded.level
		`, userID, label, st.Experience, level, now)
		if err != nil {
			return fmt.Errorf("save stats %q: %w", label, err)
		}
	}
	return nil
}

// DeleteNode removes a concept, its incident edges and its stats, and bumps
// the graph version.
func (db *DB) DeleteNode(ctx context.Context, userID, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var label string
	err = tx.QueryRowContext(ctx, `SELECT label FROM concept_nodes WHERE user_id = ? AND id = ?`, userID, id).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("find node: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM concept_edges WHERE user_id = ? AND (source = ? OR target = ?)
	`, userID, id, id); err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM concept_nodes WHERE user_id = ? AND id = ?`, userID, id); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM node_stats WHERE user_id = ? AND label = ?`, userID, label); err != nil {
		return fmt.Errorf("delete stats: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE graph_meta SET version = version + 1, updated_at = ? WHERE user_id = ?
	`, time.Now().UnixMilli(), userID); err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	return tx.Commit()
}

// ClearUser deletes every graph row, stat and journal entry for the user.
func (db *DB) ClearUser(ctx context.Context, userID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"concept_edges", "concept_nodes", "graph_meta", "node_stats", "journal_entries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func millis(t time.Time, fallback int64) int64 {
	if t.IsZero() {
		return fallback
	}
	return t.UnixMilli()
}
