// Package all links every storage backend into the binary.
package all

import (
	_ "github.com/lverweijen/fellegiholt/internal/storage/mssql"
	_ "github.com/lverweijen/fellegiholt/internal/storage/mysql"
	_ "github.com/lverweijen/fellegiholt/internal/storage/postgres"
	_ "github.com/lverweijen/fellegiholt/internal/storage/sqlite"
)
