package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorrupt is returned alongside an empty Database when persisted
	// state exists but cannot be parsed. Callers treat it as a cold start.
	ErrCorrupt = errors.New("snapshot is corrupt")

	ErrUnknownBackend = errors.New("unknown snapshot backend")
)

// Store persists the Database between runs.
//
// Load always returns a usable, non-nil Database. A missing file is an empty
// Database and a nil error; unreadable or corrupt state is an empty Database
// plus an error describing why, which callers log and otherwise ignore.
//
// Save overwrites the whole persisted copy. It is meant to be called once per
// run, after every store has been processed.
type Store interface {
	Load(ctx context.Context) (Database, error)
	Save(ctx context.Context, db Database) error
}

// Open returns the Store for backend ("json" or "sqlite") at path.
func Open(backend, path string) (Store, error) {
	if path == "" {
		return nil, errors.New("snapshot path is empty")
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "json":
		return NewJSONFile(path), nil
	case "sqlite":
		return NewSQLite(path), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}
