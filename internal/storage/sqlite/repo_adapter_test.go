package sqlite

import (
	"context"
	"testing"

	"github.com/lverweijen/fellegiholt/internal/storage"
)

// Registration goes through the newRepository hook and Close runs its cleanup.
func TestRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var (
		gotCfg Config
		closed bool
	)
	newRepository = func(_ context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: "x.db", Table: "fixed"})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if gotCfg.DSN != "x.db" || gotCfg.Table != "fixed" {
		t.Fatalf("hook cfg = %+v", gotCfg)
	}
	repo.Close()
	if !closed {
		t.Fatalf("Close did not run the cleanup function")
	}
}
