package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLocalOpen covers success, missing file, and pre-canceled context.
func TestLocalOpen(t *testing.T) {
	t.Parallel()

	type tc struct {
		name            string
		prepare         func(t *testing.T) string
		makeCtx         func() context.Context
		wantErrIs       error
		wantErrContains string
		wantContent     string
	}

	write := func(t *testing.T, payload string) string {
		t.Helper()
		p := filepath.Join(t.TempDir(), "survey.csv")
		if err := os.WriteFile(p, []byte(payload), 0o644); err != nil {
			t.Fatalf("write test file: %v", err)
		}
		return p
	}

	cases := []tc{
		{
			name:        "success_reads_content",
			prepare:     func(t *testing.T) string { return write(t, "profit,cost\n1,2\n") },
			makeCtx:     context.Background,
			wantContent: "profit,cost\n1,2\n",
		},
		{
			name: "missing_file_errors_with_wrapping",
			prepare: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.csv")
			},
			makeCtx:         context.Background,
			wantErrIs:       os.ErrNotExist,
			wantErrContains: "open ",
		},
		{
			name:    "pre_canceled_context_short_circuits",
			prepare: func(t *testing.T) string { return write(t, "ignored") },
			makeCtx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErrIs: context.Canceled,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			src := NewLocal(c.prepare(t))
			rc, err := src.Open(c.makeCtx())
			if c.wantErrIs != nil || c.wantErrContains != "" {
				if err == nil {
					rc.Close()
					t.Fatalf("Open() error = nil, want error")
				}
				if c.wantErrIs != nil && !errors.Is(err, c.wantErrIs) {
					t.Fatalf("Open() error = %v, want errors.Is %v", err, c.wantErrIs)
				}
				if c.wantErrContains != "" && !strings.Contains(err.Error(), c.wantErrContains) {
					t.Fatalf("Open() error = %q, want substring %q", err, c.wantErrContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer rc.Close()
			b, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(b) != c.wantContent {
				t.Fatalf("content = %q, want %q", b, c.wantContent)
			}
		})
	}
}

func TestLocalOpen_Reopens(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "survey.csv")
	if err := os.WriteFile(p, []byte("age\n30\n"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	src := NewLocal(p)

	for i := 0; i < 2; i++ {
		rc, err := src.Open(context.Background())
		if err != nil {
			t.Fatalf("Open() #%d error = %v", i+1, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll #%d: %v", i+1, err)
		}
		if string(b) != "age\n30\n" {
			t.Fatalf("Open() #%d content = %q", i+1, b)
		}
	}
}
