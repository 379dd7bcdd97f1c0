// Package all links every ledger backend and the SQL Server driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "distractors/internal/storage/mssql"
	_ "distractors/internal/storage/postgres"
	_ "distractors/internal/storage/sqlite"
)
