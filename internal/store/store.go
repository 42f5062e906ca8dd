// Package store owns the relational schema for indexed experiment
// recordings and optimization artifacts, and every query the indexer and
// search facade run against it.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	xerrors "github.com/imudex/imudex/internal/errors"
)

// Store is the handle to the SQLite database. It is constructed once at
// process start and passed to the indexer, watcher and API facade; there
// is no package-level singleton.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens (creating if absent) the database at path and ensures the
// schema and lookup seeds exist. An empty path opens an in-memory
// database for testing.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer to prevent lock contention; database/sql hands the
	// one connection to each logical operation in turn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite; set pragmas
	// explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates all tables and seeds the lookup tables. Safe to call
// repeatedly; seeding is gated on an emptiness check so the lookup rows
// are written exactly once per database file.
func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.seedLookups()
}

func (s *Store) seedLookups() error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM optimization_strategies`).Scan(&n); err != nil {
		return fmt.Errorf("check strategy seed: %w", err)
	}
	if n == 0 {
		for _, st := range strategySeeds {
			_, err := s.db.Exec(
				`INSERT INTO optimization_strategies
				 (id, name, requires_subject, requires_scenario, requires_sensor_setting, description)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				st.id, st.name, boolToInt(st.subject), boolToInt(st.scenario), boolToInt(st.set), st.description)
			if err != nil {
				return fmt.Errorf("seed strategy %d: %w", st.id, err)
			}
		}
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sensor_settings`).Scan(&n); err != nil {
		return fmt.Errorf("check sensor setting seed: %w", err)
	}
	if n == 0 {
		for _, ss := range sensorSettingSeeds {
			_, err := s.db.Exec(
				`INSERT INTO sensor_settings (code, description, components) VALUES (?, ?, ?)`,
				ss.code, ss.description, ss.components)
			if err != nil {
				return fmt.Errorf("seed sensor setting %s: %w", ss.code, err)
			}
		}
	}
	return nil
}

// ResetCoreTables deletes all rows from the five mutable core tables and
// resets their autoincrement counters. Optimization and lookup tables are
// untouched, which is what lets the two reindex pipelines run
// concurrently against disjoint table sets.
func (s *Store) ResetCoreTables() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wipeTables([]string{"data_quality", "sensors", "tests", "experiments"})
}

// ResetOptimizationTables is the symmetric operation for the optimization
// subsystem. Lookup tables keep their seeds.
func (s *Store) ResetOptimizationTables() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wipeTables([]string{
		"optimization_visualizations",
		"optimization_results",
		"parameter_sensor_settings",
		"parameter_scenarios",
		"parameter_subjects",
		"optimization_parameters",
	})
}

// wipeTables deletes rows with foreign keys off so delete order cannot
// matter, then re-enables enforcement.
func (s *Store) wipeTables(tables []string) error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return classify("disable foreign keys", err)
	}
	defer func() {
		_, _ = s.db.Exec("PRAGMA foreign_keys = ON")
	}()

	for _, table := range tables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return classify("wipe "+table, err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tables)), ",")
	args := make([]any, len(tables))
	for i, t := range tables {
		args[i] = t
	}
	if _, err := s.db.Exec(
		"DELETE FROM sqlite_sequence WHERE name IN ("+placeholders+")", args...); err != nil {
		return classify("reset autoincrement", err)
	}
	return nil
}

// DropAndRecreate drops every table and rebuilds the schema from scratch.
// Last-resort recovery used when retried reindexing keeps failing.
func (s *Store) DropAndRecreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slog.Warn("dropping and recreating all tables", slog.String("db", s.path))

	if _, err := s.db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return classify("disable foreign keys", err)
	}
	tables := []string{
		"data_quality", "sensors", "tests", "experiments",
		"optimization_visualizations", "optimization_results",
		"parameter_sensor_settings", "parameter_scenarios", "parameter_subjects",
		"optimization_parameters", "sensor_settings", "optimization_strategies",
		"schema_version",
	}
	for _, table := range tables {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return classify("drop "+table, err)
		}
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return classify("enable foreign keys", err)
	}

	return s.initSchema()
}

// Close closes the database. Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database file path ("" for in-memory stores).
func (s *Store) Path() string {
	return s.path
}

// classify wraps a storage error, tagging lock/busy conditions as
// retryable so the watcher's retry loop can distinguish them.
func classify(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") {
		return xerrors.New(xerrors.ErrCodeStoreBusy, op+": "+msg, err)
	}
	return xerrors.New(xerrors.ErrCodeStoreFailed, op+": "+msg, err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
