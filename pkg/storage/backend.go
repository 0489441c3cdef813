// Package storage holds node payload for documents. The history log itself
// lives in memory only; backends here store the text each record points at,
// keyed by its history index.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"historytree/pkg/common"
	"historytree/pkg/config"
	"historytree/pkg/core/memory"

	_ "modernc.org/sqlite"
)

var ErrUnknownBackend = errors.New("storage: unknown backend")

// Backend stores the payload of one document.
type Backend interface {
	Write(key common.Index, val []byte) error
	Read(key common.Index) ([]byte, bool)
	// TruncateAfter drops every entry past cursor.
	TruncateAfter(cursor common.Index) error
	// WriteNext drops every entry past cursor and stores val at cursor+1 in
	// one step. On error the backend is left as it was.
	WriteNext(cursor common.Index, val []byte) error
	LoadAll() ([]common.Entry, error)
	Close() error
}

// Factory hands out one Backend per document.
type Factory interface {
	New(doc string) (Backend, error)
	Name() string
	Close() error
}

// Open returns the factory named by cfg.Backend.
func Open(cfg config.StorageConfig) (Factory, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return &MemoryFactory{Degree: cfg.BTreeDegree}, nil
	case config.BackendSQLite:
		return OpenSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

type MemoryFactory struct {
	Degree int
}

func (f *MemoryFactory) New(string) (Backend, error) {
	return &MemoryBackend{table: memory.NewMemTable(f.Degree)}, nil
}

func (f *MemoryFactory) Name() string { return config.BackendMemory }

func (f *MemoryFactory) Close() error { return nil }

type MemoryBackend struct {
	table *memory.MemTable
}

func NewMemoryBackend(degree int) *MemoryBackend {
	return &MemoryBackend{table: memory.NewMemTable(degree)}
}

func (m *MemoryBackend) Write(key common.Index, val []byte) error {
	m.table.Put(key, val)
	return nil
}

func (m *MemoryBackend) Read(key common.Index) ([]byte, bool) {
	return m.table.Get(key)
}

func (m *MemoryBackend) TruncateAfter(cursor common.Index) error {
	m.table.TruncateAfter(cursor)
	return nil
}

func (m *MemoryBackend) WriteNext(cursor common.Index, val []byte) error {
	m.table.TruncateAfter(cursor)
	m.table.Put(cursor+1, val)
	return nil
}

func (m *MemoryBackend) LoadAll() ([]common.Entry, error) {
	entries := make([]common.Entry, 0, m.table.Count())
	m.table.Iterator(func(k common.Index, v []byte) bool {
		entries = append(entries, common.Entry{Key: k, Value: v})
		return true
	})
	return entries, nil
}

func (m *MemoryBackend) Close() error { return nil }

// SQLiteFactory keeps the payload of all documents in one database, one row
// per (document, index).
type SQLiteFactory struct {
	db *sql.DB
}

// OpenSQLite opens dsn, or a private in-memory database when dsn is empty.
func OpenSQLite(dsn string) (*SQLiteFactory, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	query := `
	CREATE TABLE IF NOT EXISTS payload (
		doc   TEXT    NOT NULL,
		key   INTEGER NOT NULL,
		value BLOB,
		PRIMARY KEY (doc, key)
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("init payload table: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
		slog.Warn("failed to set sqlite pragmas", "component", "storage", "err", err)
	}

	return &SQLiteFactory{db: db}, nil
}

func (f *SQLiteFactory) New(doc string) (Backend, error) {
	if _, err := f.db.Exec("DELETE FROM payload WHERE doc = ?", doc); err != nil {
		return nil, fmt.Errorf("reset payload of %s: %w", doc, err)
	}
	return &SQLiteBackend{db: f.db, doc: doc}, nil
}

func (f *SQLiteFactory) Name() string { return config.BackendSQLite }

func (f *SQLiteFactory) Close() error {
	return f.db.Close()
}

type SQLiteBackend struct {
	db  *sql.DB
	doc string
	mu  sync.Mutex
}

func (s *SQLiteBackend) Write(key common.Index, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO payload (doc, key, value) VALUES (?, ?, ?)", s.doc, int64(key), val)
	return err
}

func (s *SQLiteBackend) Read(key common.Index) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRow("SELECT value FROM payload WHERE doc = ? AND key = ?", s.doc, int64(key)).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Error("payload read failed", "component", "storage", "doc", s.doc, "key", key, "err", err)
		return nil, false
	}
	return val, true
}

func (s *SQLiteBackend) TruncateAfter(cursor common.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM payload WHERE doc = ? AND key > ?", s.doc, int64(cursor))
	return err
}

func (s *SQLiteBackend) WriteNext(cursor common.Index, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM payload WHERE doc = ? AND key > ?", s.doc, int64(cursor)); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO payload (doc, key, value) VALUES (?, ?, ?)", s.doc, int64(cursor+1), val); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteBackend) LoadAll() ([]common.Entry, error) {
	rows, err := s.db.Query("SELECT key, value FROM payload WHERE doc = ? ORDER BY key ASC", s.doc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []common.Entry
	for rows.Next() {
		var k int64
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		entries = append(entries, common.Entry{Key: common.Index(k), Value: v})
	}
	return entries, rows.Err()
}

// Close drops the document's rows; the shared database stays open.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM payload WHERE doc = ?", s.doc)
	return err
}
