// Package mssql implements a SQL Server storage.Repository with the
// go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// Config holds the connection string and the target table.
type Config struct {
	DSN   string
	Table string
}

// Repository writes dataset rows to SQL Server.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository parses the DSN, opens a pool and checks it answers.
//
// Behavior:
//   - An empty or malformed DSN fails before any connection is attempted.
//   - The ping runs under a 10s timeout derived from ctx. On failure the
//     pool is closed again.
//
// Returns the repository and a func that closes the pool.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, errors.New("mssql: empty dsn")
	}
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql: parse dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: open: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repository{db: db, table: cfg.Table}, func() { _ = db.Close() }, nil
}

// CopyFrom streams rows through one bulk insert and commits.
//
// Behavior:
//   - The bulk copy takes a table lock and runs inside one transaction. Any
//     failure rolls back every row of the call and reports 0 rows written.
//   - A row whose length differs from columns fails the call with its index.
//   - An empty batch returns 0 without opening a transaction.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var n int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.table, mssql.BulkOptions{Tablock: true}, columns...))
		if err != nil {
			return fmt.Errorf("prepare bulk copy into %s: %w", r.table, err)
		}
		defer stmt.Close()

		for i, row := range rows {
			if len(row) != len(columns) {
				return fmt.Errorf("row %d: %d values for %d columns", i, len(row), len(columns))
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		// An argument-less Exec flushes the bulk batch.
		res, err := stmt.ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("flush bulk copy: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mssql: %w", err)
	}
	return n, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Exec runs one statement, typically DDL.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec: %w", err)
	}
	return nil
}

// msIdent brackets one identifier part.
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
