// Package statsstore persists per-group, per-outcome query counters in a
// SQLite database so they survive process restarts, for the admin surface's
// /stats endpoint. It is not on the forwarding hot path's correctness: a
// write failure here is logged, never returned to the caller that answered
// the DNS query.
package statsstore

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite-backed counter table.
type Store struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Open opens or creates the SQLite database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("statsstore: opening %s: %w", path, err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("statsstore: migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("statsstore: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("statsstore: migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("statsstore: running migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// RecordQuery increments the counter for (group, outcome) by one.
func (s *Store) RecordQuery(group, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT INTO query_counters (group_name, outcome, count, updated_at)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(group_name, outcome) DO UPDATE SET
			count = count + 1,
			updated_at = CURRENT_TIMESTAMP
	`, group, outcome)
	if err != nil {
		// Best-effort: a counter write failure must never affect the
		// query that's already been answered.
		return
	}
}

// Counter is one (group, outcome) row as reported by Totals.
type Counter struct {
	Group   string `json:"group"`
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

// Totals returns every recorded (group, outcome) counter.
func (s *Store) Totals() ([]Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(`SELECT group_name, outcome, count FROM query_counters ORDER BY group_name, outcome`)
	if err != nil {
		return nil, fmt.Errorf("statsstore: querying totals: %w", err)
	}
	defer rows.Close()

	var out []Counter
	for rows.Next() {
		var c Counter
		if err := rows.Scan(&c.Group, &c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("statsstore: scanning totals: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
