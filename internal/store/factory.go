package store

import "strings"

// Open picks a backend from the DSN shape: postgres URLs go to
// PostgresStore, sqlite DSNs and .db/.sqlite paths go to SQLiteStore,
// anything else is a JSON file path.
func Open(dsn string, key []byte) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(dsn, key)
	case strings.HasPrefix(dsn, "sqlite:"):
		return NewSQLite(strings.TrimPrefix(dsn, "sqlite:"), key)
	case strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"), strings.HasSuffix(dsn, ".sqlite3"):
		return NewSQLite(dsn, key)
	default:
		return NewFile(dsn, key)
	}
}
