package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ColumnType is a dialect-neutral column type.
type ColumnType int

const (
	// TypeFloat holds a cell value.
	TypeFloat ColumnType = iota
	// TypeInt holds a row label.
	TypeInt
)

// ColumnDef describes one column.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	PrimaryKey bool
}

// TableDef describes a table. FQN may be schema-qualified ("public.t").
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// RowColumn is the column that carries the dataset row label.
const RowColumn = "row_label"

// DatasetTable returns the table shape used to store a dataset: the row label
// as primary key followed by one nullable float column per field.
func DatasetTable(fqn string, fields []string) TableDef {
	td := TableDef{FQN: fqn, Columns: make([]ColumnDef, 0, len(fields)+1)}
	td.Columns = append(td.Columns, ColumnDef{Name: RowColumn, Type: TypeInt, PrimaryKey: true})
	for _, f := range fields {
		td.Columns = append(td.Columns, ColumnDef{Name: f, Type: TypeFloat, Nullable: true})
	}
	return td
}

// DDLBuilder renders a CREATE TABLE statement for one dialect. The
// statement must be a no-op when the table already exists.
type DDLBuilder func(td TableDef) (string, error)

var (
	ddlMu       sync.RWMutex
	ddlBuilders = map[string]DDLBuilder{}
)

// RegisterDDL adds or replaces the DDL builder for kind.
func RegisterDDL(kind string, b DDLBuilder) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlBuilders[kind] = b
}

// BuildCreateTable renders td with the builder registered for kind.
func BuildCreateTable(kind string, td TableDef) (string, error) {
	ddlMu.RLock()
	b, ok := ddlBuilders[strings.ToLower(strings.TrimSpace(kind))]
	ddlMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: no DDL builder registered for kind %q", kind)
	}
	return b(td)
}

// EnsureTable creates td through repo unless it already exists.
//
// Behavior:
//   - The statement comes from the DDL builder registered for kind; an
//     unregistered kind fails without touching repo.
//   - Every builder renders an idempotent statement, so calling EnsureTable
//     on each run is safe.
//   - An existing table is left as is, even when its columns differ from td.
func EnsureTable(ctx context.Context, kind string, repo Repository, td TableDef) error {
	stmt, err := BuildCreateTable(kind, td)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("storage: create table %s: %w", td.FQN, err)
	}
	return nil
}

// ColumnList renders the column definitions and primary key constraint of td
// using the dialect's identifier quoting and type names. Backends wrap the
// result in their own CREATE form.
func ColumnList(td TableDef, quote func(string) string, sqlType func(ColumnType) string) (string, error) {
	if strings.TrimSpace(td.FQN) == "" {
		return "", fmt.Errorf("storage: table name must not be empty")
	}
	if len(td.Columns) == 0 {
		return "", fmt.Errorf("storage: table %s needs at least one column", td.FQN)
	}
	cols := make([]string, 0, len(td.Columns)+1)
	var pks []string
	for _, c := range td.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("storage: column with empty name in table %s", td.FQN)
		}
		def := quote(name) + " " + sqlType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
		if c.PrimaryKey {
			pks = append(pks, quote(name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	return "  " + strings.Join(cols, ",\n  "), nil
}

// QuoteFQN splits name on dots and quotes each part with quote.
func QuoteFQN(name string, quote func(string) string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}
