package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "concept graph: nodes, edges, per-user version",
		SQL: `
CREATE TABLE concept_nodes (
    user_id    TEXT NOT NULL,
    id         TEXT NOT NULL,
    label      TEXT NOT NULL,
    norm_label TEXT NOT NULL,
    node_type  TEXT NOT NULL CHECK (node_type IN ('none', 'action', 'skill', 'characteristic')),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    PRIMARY KEY (user_id, id),
    UNIQUE (user_id, norm_label)
);

CREATE TABLE concept_edges (
    user_id TEXT NOT NULL,
    source  TEXT NOT NULL,
    target  TEXT NOT NULL,
    weight  REAL NOT NULL CHECK (weight >= 0.01 AND weight <= 1.0),

    PRIMARY KEY (user_id, source, target),
    CHECK (source <> target),
    FOREIGN KEY (user_id, source) REFERENCES concept_nodes(user_id, id) ON DELETE CASCADE,
    FOREIGN KEY (user_id, target) REFERENCES concept_nodes(user_id, id) ON DELETE CASCADE
);

CREATE INDEX idx_edges_target ON concept_edges(user_id, target);

CREATE TABLE graph_meta (
    user_id    TEXT PRIMARY KEY,
    version    INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "node_stats: experience and level per concept label",
		SQL: `
CREATE TABLE node_stats (
    user_id    TEXT NOT NULL,
    label      TEXT NOT NULL,
    experience REAL NOT NULL DEFAULT 0 CHECK (experience >= 0),
    level      INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
    updated_at INTEGER NOT NULL,

    PRIMARY KEY (user_id, label)
);

CREATE INDEX idx_stats_experience ON node_stats(user_id, experience DESC);
`,
	},
	{
		Version:     3,
		Description: "journal_entries: submitted entries and their results",
		SQL: `
CREATE TABLE journal_entries (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    text           TEXT NOT NULL DEFAULT '',
    actions        TEXT NOT NULL DEFAULT '[]',
    duration       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL CHECK (status IN ('persisted', 'failed')),
    source         TEXT NOT NULL DEFAULT '',
    total_increase REAL NOT NULL DEFAULT 0,
    levels_gained  INTEGER NOT NULL DEFAULT 0,
    result_json    TEXT,
    error          TEXT,
    created_at     INTEGER NOT NULL
);

CREATE INDEX idx_entries_user_created ON journal_entries(user_id, created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
