package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is a pure-Go implementation that doesn't require
	// CGO, keeping the storefront binary cross-compilable.
	_ "modernc.org/sqlite"

	"sheetcart/internal/model"
)

// SQLiteStore implements Store on a single-table SQLite key-value schema.
// One row per key; the cart row holds the serialized JSON array.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex // serializes writes; SQLite dislikes concurrent writers
	logger *slog.Logger
}

// NewSQLite opens or creates the storage database at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// busy_timeout covers the CLI racing a long-lived engine process.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, model.NewStorageError("open", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, model.NewStorageError("open", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, model.NewStorageError("init", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// LoadCart returns the persisted cart. A missing row or a row that fails to
// deserialize both yield an empty cart; corruption is logged, not thrown.
func (s *SQLiteStore) LoadCart() (model.Cart, error) {
	raw, err := s.get(keyCart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Cart{}, nil
		}
		return model.Cart{}, model.NewStorageError("load", err)
	}

	var cart model.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		s.logger.Warn("discarding corrupt persisted cart", slog.Any("error", err))
		return model.Cart{}, nil
	}
	return cart, nil
}

// SaveCart persists the cart, deleting the row entirely when empty.
func (s *SQLiteStore) SaveCart(cart model.Cart) error {
	if cart.IsEmpty() {
		return s.RemoveCart()
	}

	raw, err := json.Marshal(cart)
	if err != nil {
		return model.NewStorageError("save", err)
	}
	if err := s.set(keyCart, string(raw)); err != nil {
		return model.NewStorageError("save", err)
	}
	return nil
}

// RemoveCart deletes the persisted cart row.
func (s *SQLiteStore) RemoveCart() error {
	if err := s.delete(keyCart); err != nil {
		return model.NewStorageError("remove", err)
	}
	return nil
}

// Token returns the stored fallback bearer token, or "".
func (s *SQLiteStore) Token() (string, error) {
	raw, err := s.get(keyToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", model.NewStorageError("token", err)
	}
	return raw, nil
}

// SetToken stores the fallback bearer token.
func (s *SQLiteStore) SetToken(token string) error {
	if err := s.set(keyToken, token); err != nil {
		return model.NewStorageError("token", err)
	}
	return nil
}

// DeleteToken removes the fallback bearer token.
func (s *SQLiteStore) DeleteToken() error {
	if err := s.delete(keyToken); err != nil {
		return model.NewStorageError("token", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	return value, err
}

func (s *SQLiteStore) set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s *SQLiteStore) delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}
