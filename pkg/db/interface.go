package db

import "database/sql"

// DBProvider is implemented by clients that own a sql.DB handle the store can run on.
// Both PostgresClient and SupabaseClient satisfy it.
type DBProvider interface {
	DB() *sql.DB
	Close() error
}
