// Package output writes run results: the correction table and the
// policy-applied dataset, to CSV files or through a storage repository.
package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/lverweijen/fellegiholt/internal/batch"
	"github.com/lverweijen/fellegiholt/internal/metrics"
	"github.com/lverweijen/fellegiholt/internal/record"
	"github.com/lverweijen/fellegiholt/internal/storage"
)

// DefaultBatchSize is used when StoreOptions.BatchSize is zero.
const DefaultBatchSize = 1000

// CorrectionHeader is the header row of the correction table.
var CorrectionHeader = []string{"row", "field", "original", "suggested", "degraded"}

// WriteCorrections writes one CSV line per flagged cell. Missing originals
// and absent suggestions are written as empty cells.
func WriteCorrections(w io.Writer, cs []batch.Correction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CorrectionHeader); err != nil {
		return err
	}
	for _, c := range cs {
		orig := ""
		if f, ok := c.Original.Float(); ok {
			orig = formatFloat(f)
		}
		sugg := ""
		if c.Suggested != nil {
			sugg = formatFloat(*c.Suggested)
		}
		if err := cw.Write([]string{strconv.Itoa(c.Row), c.Field, orig, sugg, strconv.FormatBool(c.Degraded)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDatasetCSV writes ds with a leading row label column. Missing cells
// are empty.
func WriteDatasetCSV(w io.Writer, ds *record.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{storage.RowColumn}, ds.Columns...)); err != nil {
		return err
	}
	line := make([]string, len(ds.Columns)+1)
	for i, r := range ds.Rows {
		line[0] = strconv.Itoa(ds.Label(i))
		for j, c := range ds.Columns {
			line[j+1] = ""
			if f, ok := r.Lookup(c); ok {
				line[j+1] = formatFloat(f)
			}
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ToFile creates path and hands it to write.
func ToFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	return nil
}

// StoreOptions configures Store.
type StoreOptions struct {
	// Kind is the storage kind, used to pick the DDL dialect.
	Kind       string
	Table      string
	AutoCreate bool
	BatchSize  int
	Job        string
	Logger     *zap.Logger
}

// Store writes ds through repo, creating the table first when AutoCreate is
// set. Rows are streamed to the batched loader by a producer goroutine.
func Store(ctx context.Context, repo storage.Repository, ds *record.Dataset, opts StoreOptions) (int64, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	if opts.AutoCreate {
		if err := storage.EnsureTable(ctx, opts.Kind, repo, storage.DatasetTable(opts.Table, ds.Columns)); err != nil {
			metrics.RecordStep(opts.Job, "store", err, time.Since(start))
			return 0, err
		}
	}

	columns := append([]string{storage.RowColumn}, ds.Columns...)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	in := make(chan []any, opts.BatchSize)
	go func() {
		defer close(in)
		for i := range ds.Rows {
			row := append([]any{ds.Label(i)}, ds.Values(i)...)
			select {
			case in <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	n, err := storage.LoadBatches(ctx, columns, in, opts.BatchSize, repo.CopyFrom, log)
	metrics.RecordStep(opts.Job, "store", err, time.Since(start))
	if err != nil {
		return n, fmt.Errorf("output: store %s: %w", opts.Table, err)
	}
	metrics.RecordRow(opts.Job, "stored", n)
	log.Info("output: dataset stored", zap.String("table", opts.Table), zap.Int64("rows", n))
	return n, nil
}

func formatFloat(f float64) string { return cast.ToString(f) }
