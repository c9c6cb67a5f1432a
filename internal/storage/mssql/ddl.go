package mssql

import (
	"fmt"
	"strings"

	"github.com/lverweijen/fellegiholt/internal/storage"
)

// BuildCreateTableSQL renders td guarded by an OBJECT_ID check, since SQL
// Server has no CREATE TABLE IF NOT EXISTS.
func BuildCreateTableSQL(td storage.TableDef) (string, error) {
	body, err := storage.ColumnList(td, msIdent, sqlType)
	if err != nil {
		return "", fmt.Errorf("mssql ddl: %w", err)
	}
	name := strings.ReplaceAll(td.FQN, "'", "''")
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n%s\n);",
		name, storage.QuoteFQN(td.FQN, msIdent), body), nil
}

func sqlType(t storage.ColumnType) string {
	if t == storage.TypeInt {
		return "BIGINT"
	}
	return "FLOAT"
}
