package postgres

import (
	"fmt"

	"github.com/lverweijen/fellegiholt/internal/storage"
)

// BuildCreateTableSQL renders td as CREATE TABLE IF NOT EXISTS.
func BuildCreateTableSQL(td storage.TableDef) (string, error) {
	body, err := storage.ColumnList(td, pgIdent, sqlType)
	if err != nil {
		return "", fmt.Errorf("postgres ddl: %w", err)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", storage.QuoteFQN(td.FQN, pgIdent), body), nil
}

func sqlType(t storage.ColumnType) string {
	if t == storage.TypeInt {
		return "BIGINT"
	}
	return "DOUBLE PRECISION"
}
