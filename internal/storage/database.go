package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// New opens the trace database at the given path.
// WAL mode plus a busy timeout gives the serialized-write discipline the
// pipeline relies on: note/edge/job updates commit atomically and writers
// queue instead of failing on contention.
func New(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the required tables. It is idempotent.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			monitor_id INTEGER NOT NULL,
			app_id TEXT NOT NULL DEFAULT '',
			app_name TEXT NOT NULL DEFAULT '',
			window_title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			page_title TEXT NOT NULL DEFAULT '',
			doc_path TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			now_playing TEXT NOT NULL DEFAULT '',
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			sealed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_window ON events(start_ts, end_ts);`,
		`CREATE TABLE IF NOT EXISTS screenshots (
			id TEXT PRIMARY KEY,
			monitor_id INTEGER NOT NULL,
			captured_ts INTEGER NOT NULL,
			day TEXT NOT NULL,
			path TEXT NOT NULL,
			fingerprint INTEGER NOT NULL,
			diff_score INTEGER NOT NULL,
			is_anchor INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_screenshots_day ON screenshots(day);`,
		`CREATE INDEX IF NOT EXISTS idx_screenshots_ts ON screenshots(captured_ts);`,
		`CREATE TABLE IF NOT EXISTS text_buffers (
			id TEXT PRIMARY KEY,
			source_type TEXT NOT NULL,
			source_ref TEXT NOT NULL,
			day TEXT NOT NULL,
			path TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			captured_ts INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_text_buffers_day ON text_buffers(day);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			file_path TEXT NOT NULL,
			json_payload TEXT NOT NULL,
			embedding_id TEXT NOT NULL DEFAULT '',
			created_ts INTEGER NOT NULL,
			updated_ts INTEGER NOT NULL,
			UNIQUE (type, start_ts, end_ts)
		);`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			aliases TEXT NOT NULL DEFAULT '[]',
			created_ts INTEGER NOT NULL,
			merged_into TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(canonical_name);`,
		`CREATE TABLE IF NOT EXISTS note_entities (
			note_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			strength REAL NOT NULL,
			PRIMARY KEY (note_id, entity_id),
			FOREIGN KEY (note_id) REFERENCES notes(id),
			FOREIGN KEY (entity_id) REFERENCES entities(id)
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			weight REAL NOT NULL CHECK (weight >= 0),
			start_ts INTEGER NOT NULL DEFAULT 0,
			end_ts INTEGER NOT NULL DEFAULT 0,
			evidence_note_ids TEXT NOT NULL DEFAULT '[]',
			updated_ts INTEGER NOT NULL,
			PRIMARY KEY (from_id, to_id, edge_type)
		);`,
		`CREATE TABLE IF NOT EXISTS aggregates (
			period_type TEXT NOT NULL,
			period_start_ts INTEGER NOT NULL,
			period_end_ts INTEGER NOT NULL,
			key_type TEXT NOT NULL,
			key TEXT NOT NULL,
			value_num REAL NOT NULL,
			PRIMARY KEY (period_type, period_start_ts, key_type, key)
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			job_type TEXT NOT NULL,
			window_start_ts INTEGER NOT NULL,
			window_end_ts INTEGER NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_ts INTEGER NOT NULL,
			updated_ts INTEGER NOT NULL,
			UNIQUE (job_type, window_start_ts, window_end_ts)
		);`,
		`CREATE TABLE IF NOT EXISTS now_playing (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL DEFAULT '',
			app TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_now_playing_ts ON now_playing(ts);`,
		`CREATE TABLE IF NOT EXISTS locations (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			text TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS deletion_log (
			day TEXT PRIMARY KEY,
			screenshots INTEGER NOT NULL,
			text_buffers INTEGER NOT NULL,
			ocr_intermediates INTEGER NOT NULL,
			deleted_ts INTEGER NOT NULL
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
