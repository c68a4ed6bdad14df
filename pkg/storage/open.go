package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var sqlitePragmas = []string{
	"busy_timeout(10000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// Open opens a database for the given driver and verifies the connection.
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn = withSQLitePragmas(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func withSQLitePragmas(dsn string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
