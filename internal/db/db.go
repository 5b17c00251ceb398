package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection and provides event logging methods
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the receive loop log navigations while a CLI reads events
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close checkpoints the WAL and closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

func (db *DB) initSchema() error {
	schema := `
	-- Helper lifecycle: download, start, connect, terminate
	CREATE TABLE IF NOT EXISTS bridge_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- One row per navigate-to-symbol request
	CREATE TABLE IF NOT EXISTS navigations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		file TEXT NOT NULL,
		row INTEGER NOT NULL,
		col INTEGER NOT NULL,
		class_name TEXT,
		line INTEGER,
		outcome TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bridge_events_timestamp ON bridge_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_navigations_timestamp ON navigations(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// BridgeEvent represents a helper lifecycle event
type BridgeEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogBridgeEvent logs a helper lifecycle event
func (db *DB) LogBridgeEvent(eventType, details string) error {
	return db.execWithRetry(
		`INSERT INTO bridge_events (event_type, details, timestamp) VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
}

// Navigation represents the outcome of one navigate-to-symbol request
type Navigation struct {
	ID         int64
	RequestID  string
	File       string
	Row        int
	Column     int
	ClassName  string
	Line       int
	Outcome    string // "resolved" or the failure reason
	DurationMs int64
	Timestamp  time.Time
}

// LogNavigation records a navigation request and its outcome
func (db *DB) LogNavigation(n Navigation) error {
	return db.execWithRetry(
		`INSERT INTO navigations (request_id, file, row, col, class_name, line, outcome, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.RequestID, n.File, n.Row, n.Column, n.ClassName, n.Line, n.Outcome, n.DurationMs, time.Now(),
	)
}

// execWithRetry retries briefly while the database is locked (3 attempts, 5ms between).
// Logging is best-effort and must never stall the receive loop for long.
func (db *DB) execWithRetry(query string, args ...any) error {
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(query, args...)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log event after %d retries: database locked", maxRetries)
}

// GetRecentBridgeEvents retrieves the most recent lifecycle events, newest first
func (db *DB) GetRecentBridgeEvents(limit int) ([]BridgeEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM bridge_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []BridgeEvent
	for rows.Next() {
		var e BridgeEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentNavigations retrieves the most recent navigation requests, newest first
func (db *DB) GetRecentNavigations(limit int) ([]Navigation, error) {
	rows, err := db.conn.Query(
		`SELECT id, request_id, file, row, col, COALESCE(class_name, ''), COALESCE(line, -1), outcome, duration_ms, timestamp
		 FROM navigations
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var navs []Navigation
	for rows.Next() {
		var n Navigation
		if err := rows.Scan(&n.ID, &n.RequestID, &n.File, &n.Row, &n.Column, &n.ClassName, &n.Line, &n.Outcome, &n.DurationMs, &n.Timestamp); err != nil {
			return nil, err
		}
		navs = append(navs, n)
	}
	return navs, rows.Err()
}
