package sqlite

import (
	"database/sql"

	"github.com/pkg/errors"
	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/usememos/saaskit/internal/profile"
	"github.com/usememos/saaskit/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a DB instance.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - Enforce foreign keys so deleting a session removes its messages.
	// - Set busy timeout, so concurrent writers wait on each other for a while.
	// - Use WAL so the UI and the API server can share one database file.
	//
	// References:
	// https://pkg.go.dev/modernc.org/sqlite#Driver.Open
	// https://www.sqlite.org/wal.html
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}
