package db

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// sqliteDriverName is go-sqlite3 with lower() replaced by a Unicode aware
// version. The built-in one only folds ASCII, so "ÉTICA" would never match "ética".
const sqliteDriverName = "sqlite3_irdin"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", foldLower, true)
		},
	})
}

// foldLower lowercases text and passes every other value (NULL included) through.
func foldLower(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return v
}

// SQLiteDSN builds a go-sqlite3 DSN with foreign keys enforced and WAL enabled,
// so concurrent scraper sessions wait for the write lock instead of failing.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate"
}
