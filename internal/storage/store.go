// Package storage provides the embedded SQLite store for processed state.
//
// This package contains:
//   - Store: single-writer database handle over modernc.org/sqlite
//   - Repository methods for processed messages and processed videos
//   - Migration support via goose
//   - One-shot import of the legacy plaintext state files
//
// The store exclusively owns its database file. Concurrent reads are safe;
// writes serialize behind an internal mutex.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/lueurxax/telegram-video-sorter/migrations"
)

// DatabaseFileName is the store's file name under the data directory.
const DatabaseFileName = "processed-messages.db"

// Store wraps the embedded SQLite database holding processed-message and
// processed-video state.
type Store struct {
	db     *sql.DB
	logger *zerolog.Logger
	mu     sync.RWMutex
}

type gooseLogger struct {
	logger *zerolog.Logger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(format, v...)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

// Open opens (creating if needed) the store under dataDir, runs migrations
// and imports legacy plaintext state files if present.
func Open(dataDir string, logger *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, DatabaseFileName)

	s, err := openPath(path, logger)
	if err != nil {
		return nil, err
	}

	if err := s.migrateLegacy(dataDir); err != nil {
		s.Close()

		return nil, fmt.Errorf("legacy migration: %w", err)
	}

	return s, nil
}

// OpenMemory opens an in-memory store. Legacy state files are not imported.
func OpenMemory(logger *zerolog.Logger) (*Store, error) {
	return openPath(":memory:", logger)
}

func openPath(path string, logger *zerolog.Logger) (*Store, error) {
	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; one connection keeps SQLite's locking out of the way.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()

			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()

		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()

		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(&gooseLogger{logger: s.logger})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Close()
}
