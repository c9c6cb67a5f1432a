package sqlite

import (
	"fmt"

	"github.com/lverweijen/fellegiholt/internal/storage"
)

// BuildCreateTableSQL renders td as CREATE TABLE IF NOT EXISTS.
func BuildCreateTableSQL(td storage.TableDef) (string, error) {
	body, err := storage.ColumnList(td, quoteIdent, sqlType)
	if err != nil {
		return "", fmt.Errorf("sqlite ddl: %w", err)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", storage.QuoteFQN(td.FQN, quoteIdent), body), nil
}

func sqlType(t storage.ColumnType) string {
	if t == storage.TypeInt {
		return "INTEGER"
	}
	return "REAL"
}
