package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CopyFn writes one batch of rows aligned to columns and returns how many
// rows landed. Repository.CopyFrom satisfies it. The batch is not reused
// after the call returns.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains in, writes it through copyFn in batches of batchSize
// and returns the number of rows written.
//
// Behavior:
//   - A batch is flushed as soon as it holds batchSize rows. The remainder is
//     flushed when in is closed.
//   - The first copy error stops the load. Rows of earlier batches stay
//     written and are included in the returned count, as are any rows the
//     failing call reports.
//   - A done ctx stops the load with ctx.Err(). The partial batch is dropped.
//   - A non-positive batchSize or a nil copyFn fails before reading in.
//   - A nil log is replaced by a no-op logger. Each batch logs its size,
//     running total and throughput at info level.
//
// LoadBatches never closes in. Callers that stop early should cancel ctx so
// the producer can stop as well.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
	log *zap.Logger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("storage: batch size must be positive, got %d", batchSize)
	}
	if copyFn == nil {
		return 0, errors.New("storage: nil copy function")
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &batcher{columns: columns, size: batchSize, write: copyFn, log: log, start: time.Now()}

	for {
		select {
		case <-ctx.Done():
			return b.total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				if err := b.flush(ctx); err != nil {
					return b.total, err
				}
				log.Info("loader: input closed", zap.Int("batches", b.batches), zap.Int64("rows", b.total))
				return b.total, nil
			}
			if b.add(row) {
				if err := b.flush(ctx); err != nil {
					return b.total, err
				}
			}
		}
	}
}

type batcher struct {
	columns []string
	size    int
	write   CopyFn
	log     *zap.Logger

	rows    [][]any
	total   int64
	batches int
	start   time.Time
}

// add buffers row and reports whether the batch is full.
func (b *batcher) add(row []any) bool {
	if b.rows == nil {
		b.rows = make([][]any, 0, b.size)
	}
	b.rows = append(b.rows, row)
	return len(b.rows) >= b.size
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}
	rows := b.rows
	b.rows = nil

	t0 := time.Now()
	n, err := b.write(ctx, b.columns, rows)
	b.total += n
	if err != nil {
		b.log.Error("loader: copy failed",
			zap.Int("batch", b.batches+1),
			zap.Int("rows", len(rows)),
			zap.Int64("written", n),
			zap.Error(err),
		)
		return err
	}
	b.batches++

	took := time.Since(t0)
	rps := 0.0
	if took > 0 {
		rps = float64(n) / took.Seconds()
	}
	b.log.Info(fmt.Sprintf("loader: batch #%d", b.batches),
		zap.Int64("written", n),
		zap.Int64("total", b.total),
		zap.Float64("rows_per_sec", rps),
		zap.Duration("elapsed", time.Since(b.start).Truncate(time.Millisecond)),
	)
	return nil
}
