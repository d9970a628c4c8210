package store

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// createVideos matches the videos table of spec.md §3 column for column.
// CREATE TABLE IF NOT EXISTS keeps this idempotent across restarts; the
// add-column-if-missing pass below handles upgrading an older file.
// Every column the Job struct scans as a plain string/int64 (not a
// sql.Null* type) must have a non-NULL DEFAULT here: Insert only ever
// populates filename/filepath/ffprobe_data/original_codec/original_size/
// status, so every other column starts out unset on a fresh row, and
// database/sql cannot scan a NULL into *string or *int64.
const createVideos = `
CREATE TABLE IF NOT EXISTS videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	filepath TEXT NOT NULL,
	ffprobe_data TEXT NOT NULL DEFAULT '',
	ai_command TEXT NOT NULL DEFAULT '',
	original_size INTEGER NOT NULL DEFAULT 0,
	optimized_size INTEGER NOT NULL DEFAULT 0,
	estimated_size INTEGER NOT NULL DEFAULT 0,
	optimized_path TEXT NOT NULL DEFAULT '',
	original_codec TEXT NOT NULL DEFAULT '',
	new_codec TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	progress TEXT NOT NULL DEFAULT '',
	system_info TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createStatusHistory = `
CREATE TABLE IF NOT EXISTS status_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_filepath ON videos(filepath);
CREATE INDEX IF NOT EXISTS idx_status ON videos(status);
CREATE INDEX IF NOT EXISTS idx_created_at ON videos(created_at);
CREATE INDEX IF NOT EXISTS idx_status_history_job ON status_history(job_id);
`

// CURRENT_TIMESTAMP has 1-second resolution, so two updates to the same row
// within one second leave updated_at unchanged rather than strictly
// increasing. The original implementation has the same property; kept for
// parity rather than introducing a sub-second format the driver's time
// parsing hasn't been verified against.
const createTrigger = `
CREATE TRIGGER IF NOT EXISTS update_videos_timestamp
AFTER UPDATE ON videos
BEGIN
	UPDATE videos SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
END`

// migrate brings a database file up to the current schema inside a single
// EXCLUSIVE transaction, serializing concurrent first-run initialization
// across worker processes as spec.md §4.1 requires: EXCLUSIVE acquires the
// write lock immediately instead of on first write, so a second process
// opening the same fresh file blocks here rather than racing the CREATE
// TABLE statements.
func migrate(db *sqlx.DB) error {
	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("begin exclusive: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			db.Exec("ROLLBACK")
		}
	}()

	if _, err := db.Exec(createVideos); err != nil {
		return fmt.Errorf("create videos table: %w", err)
	}
	if _, err := db.Exec(createStatusHistory); err != nil {
		return fmt.Errorf("create status_history table: %w", err)
	}

	// Columns added via ALTER TABLE also need a non-NULL default: an older
	// database file upgraded by this pass would otherwise leave existing
	// rows with NULL in the new column, same as if it were never given a
	// default in createVideos.
	for _, col := range []struct{ name, typ string }{
		{"original_codec", "TEXT NOT NULL DEFAULT ''"},
		{"new_codec", "TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "DATETIME DEFAULT CURRENT_TIMESTAMP"},
		{"progress", "TEXT NOT NULL DEFAULT ''"},
		{"system_info", "TEXT NOT NULL DEFAULT ''"},
		{"estimated_size", "INTEGER NOT NULL DEFAULT 0"},
	} {
		if err := addColumnIfMissing(db, "videos", col.name, col.typ); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}

	if _, err := db.Exec(createIndexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	if _, err := db.Exec(createTrigger); err != nil {
		return fmt.Errorf("create trigger: %w", err)
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return err
	}
	committed = true
	return nil
}

type tableInfoRow struct {
	CID        int            `db:"cid"`
	Name       string         `db:"name"`
	Type       string         `db:"type"`
	NotNull    int            `db:"notnull"`
	Default    sql.NullString `db:"dflt_value"`
	PrimaryKey int            `db:"pk"`
}

func addColumnIfMissing(db *sqlx.DB, table, column, typ string) error {
	var cols []tableInfoRow
	if err := db.Select(&cols, fmt.Sprintf("PRAGMA table_info(%s)", table)); err != nil {
		return err
	}
	for _, c := range cols {
		if c.Name == column {
			return nil
		}
	}
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	return err
}
