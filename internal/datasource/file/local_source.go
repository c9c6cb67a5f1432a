// Package file implements a local filesystem data source.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/lverweijen/fellegiholt/internal/datasource"
)

// Local opens a file from the local disk.
type Local struct{ path string }

var _ datasource.Source = (*Local)(nil)

// NewLocal returns a Local source bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the configured path.
func (l *Local) Path() string { return l.path }

// Open opens the configured file for reading.
//
// Behavior:
//   - If ctx is already done, Open returns ctx.Err() and never touches the
//     filesystem.
//   - The file is opened with os.Open. Missing files, permission problems and
//     directories surface as wrapped errors that name the path; the
//     underlying error stays reachable with errors.Is, e.g. os.ErrNotExist.
//   - Cancelling ctx after Open returns does not interrupt reads.
//
// Returns an *os.File as io.ReadCloser. The caller must Close it.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
