// Package datasource abstracts where raw input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens a fresh reader over the input.
//
// Behavior:
//   - Each Open call starts from the beginning of the input, so a Source
//     may be opened more than once.
//   - The caller must Close the returned reader.
//   - A done ctx must fail Open with ctx.Err(). Sources may also honor ctx
//     while the body is being read.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
