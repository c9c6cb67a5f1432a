// Package csv reads delimited text into a record.Dataset. Header names are
// normalized to snake_case identifiers, cells are coerced to numbers and
// empty or non-numeric cells become missing values.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/lverweijen/fellegiholt/internal/config"
	"github.com/lverweijen/fellegiholt/internal/record"
)

var (
	// ErrHeader is returned for unreadable, empty or duplicate headers.
	ErrHeader = errors.New("csv: bad header")
	// ErrRow is returned in strict mode for rows that cannot be used.
	ErrRow = errors.New("csv: bad row")
)

// utf8BOM is stripped from the first header cell.
const utf8BOM = "\uFEFF"

// logLimit caps per-row warnings so a broken file cannot flood the log.
const logLimit = 20

// Options configures the reader. The zero value reads comma-separated input.
type Options struct {
	// Comma is the field delimiter (default ',').
	Comma rune
	// HeaderMap renames source headers; keys match either the raw header or
	// its normalized form.
	HeaderMap map[string]string
	// Columns, when set, keeps only these fields (after renaming).
	Columns []string
	// Strict turns ragged rows and non-numeric cells into errors instead of
	// skipping the row or treating the cell as missing.
	Strict bool
}

// OptionsFrom reads Options from a parser options bag.
func OptionsFrom(o config.Options) Options {
	hm := o.StringMap("header_map")
	if len(hm) == 0 {
		hm = nil
	}
	return Options{
		Comma:     o.Rune("comma", ','),
		HeaderMap: hm,
		Columns:   o.StringSlice("columns"),
		Strict:    o.Bool("strict", false),
	}
}

// Stats counts what the reader dropped.
type Stats struct {
	Rows        int
	SkippedRows int
	NonNumeric  int
}

// Reader reads datasets according to Options.
type Reader struct {
	opt Options
	log *zap.Logger
}

// NewReader returns a Reader. A nil logger discards warnings.
func NewReader(opt Options, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{opt: opt, log: log}
}

// ReadDataset consumes r. Row labels are the source line numbers, so the
// first data row under a one-line header is labelled 2.
func (p *Reader) ReadDataset(ctx context.Context, r io.Reader) (*record.Dataset, Stats, error) {
	var st Stats
	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	h, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, st, fmt.Errorf("%w: input is empty", ErrHeader)
		}
		return nil, st, fmt.Errorf("%w: %w", ErrHeader, err)
	}
	headers, err := p.headers(h)
	if err != nil {
		return nil, st, err
	}
	keep, columns, err := p.selection(headers)
	if err != nil {
		return nil, st, err
	}

	ds := record.NewDataset(columns...)
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, st, err
			}
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			if p.opt.Strict {
				return nil, st, fmt.Errorf("%w: %w", ErrRow, err)
			}
			p.skip(&st, line, err.Error())
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(row) != len(headers) {
			msg := fmt.Sprintf("expected %d fields, got %d", len(headers), len(row))
			if p.opt.Strict {
				return nil, st, fmt.Errorf("%w: line %d: %s", ErrRow, line, msg)
			}
			p.skip(&st, line, msg)
			continue
		}

		rec := make(record.Record, len(columns))
		for i, raw := range row {
			if !keep[i] {
				continue
			}
			v, err := record.Coerce(raw)
			if err != nil {
				if p.opt.Strict {
					return nil, st, fmt.Errorf("%w: line %d, column %s: %w", ErrRow, line, headers[i], err)
				}
				if st.NonNumeric < logLimit {
					p.log.Warn("csv: non-numeric cell read as missing",
						zap.Int("line", line), zap.String("column", headers[i]), zap.String("value", raw))
				}
				st.NonNumeric++
				v = record.Missing
			}
			rec[headers[i]] = v
		}
		ds.AppendLabelled(line, rec)
		st.Rows++
	}

	p.log.Info("csv: dataset read",
		zap.Int("rows", st.Rows),
		zap.Int("columns", len(columns)),
		zap.Int("skipped_rows", st.SkippedRows),
		zap.Int("non_numeric", st.NonNumeric),
	)
	return ds, st, nil
}

func (p *Reader) skip(st *Stats, line int, reason string) {
	if st.SkippedRows < logLimit {
		p.log.Warn("csv: skipping row", zap.Int("line", line), zap.String("reason", reason))
	}
	st.SkippedRows++
}

// headers normalizes and renames h, rejecting empty and duplicate names.
func (p *Reader) headers(h []string) ([]string, error) {
	out := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimSpace(strings.TrimPrefix(c, utf8BOM))
		}
		name := NormalizeFieldName(c)
		if m, ok := p.opt.HeaderMap[c]; ok {
			name = m
		} else if m, ok := p.opt.HeaderMap[name]; ok {
			name = m
		}
		if name == "" {
			return nil, fmt.Errorf("%w: column %d has no usable name", ErrHeader, i+1)
		}
		if j, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: columns %d and %d both map to %q", ErrHeader, j+1, i+1, name)
		}
		seen[name] = i
		out[i] = name
	}
	return out, nil
}

// selection returns which header positions to keep and the dataset columns.
func (p *Reader) selection(headers []string) ([]bool, []string, error) {
	keep := make([]bool, len(headers))
	if len(p.opt.Columns) == 0 {
		for i := range keep {
			keep[i] = true
		}
		return keep, append([]string(nil), headers...), nil
	}
	pos := make(map[string]int, len(headers))
	for i, h := range headers {
		pos[h] = i
	}
	for _, c := range p.opt.Columns {
		i, ok := pos[c]
		if !ok {
			return nil, nil, fmt.Errorf("%w: column %q not found (have %s)", ErrHeader, c, strings.Join(headers, ", "))
		}
		keep[i] = true
	}
	return keep, append([]string(nil), p.opt.Columns...), nil
}

// NormalizeFieldName turns a header into a snake_case identifier: lowercase,
// accents stripped, runs of space, dash and dot folded into one underscore,
// other punctuation dropped. It returns "" when nothing usable remains.
func NormalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
