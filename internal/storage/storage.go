// Package storage holds the backend-agnostic contract for writing corrected
// datasets to a database, a registry of backends keyed by storage kind, and
// a batched loader that drains rows from a channel.
//
// Backends register themselves from init. Import storage/all to link every
// backend into a binary.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownKind is returned by New for a kind no backend registered.
var ErrUnknownKind = errors.New("storage: unknown kind")

// Repository is a write-only sink for dataset rows.
//
// Behavior:
//   - CopyFrom writes one batch atomically where the backend allows it
//     (postgres COPY, a transaction for mysql, mssql and sqlite). An empty
//     batch is a no-op that returns 0.
//   - Exec is used for CREATE TABLE and similar one-off statements.
//   - Close releases the connection pool. Calling other methods after Close
//     is undefined.
//
// Implementations are safe for use by one loader goroutine; they are not
// required to serialize concurrent CopyFrom calls.
type Repository interface {
	// CopyFrom inserts rows aligned to columns and returns the number of rows
	// the backend reports as written.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a single statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Columns []string
}

// Factory opens a repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds or replaces the factory for kind.
//
// Behavior:
//   - kind is stored as given. Backends register lower-case names, which New
//     matches after lower-casing and trimming cfg.Kind.
//   - A later registration for the same kind wins, so tests can swap in a
//     fake backend.
//
// Register is safe for concurrent use but is normally called from init.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a repository using the factory registered for cfg.Kind.
//
// Behavior:
//   - cfg.Kind is matched case-insensitively, ignoring surrounding spaces.
//   - An unknown kind fails with ErrUnknownKind. The message lists the
//     registered kinds, so a binary missing a backend import is obvious.
//   - An empty cfg.Table fails before the factory runs, so no connection is
//     opened for a config that could never be written.
//
// Returns the backend's repository, or the factory's error unchanged. The
// caller owns the repository and must Close it.
func New(ctx context.Context, cfg Config) (Repository, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownKind, cfg.Kind, strings.Join(Kinds(), ", "))
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, fmt.Errorf("storage: %s: table must not be empty", kind)
	}
	return f(ctx, cfg)
}
