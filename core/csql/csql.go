package csql

import (
	"database/sql"

	_ "modernc.org/sqlite" // load the database driver for sqlite

	"github.com/farmgate-io/farmgate/core/logger"
)

// DB encapsulates a standard sql.DB for the embedded gateway store.
type DB struct {
	*sql.DB
	Path string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

// Open opens the embedded sqlite store at path. The store file gets
// created if it does not exist yet.
func Open(path string) *DB {
	logger.Default().Infoln("opening sqlite store:", path)
	return open(path)
}

// OpenMemory opens a private in-memory store. Used by tests.
func OpenMemory() *DB {
	return open(":memory:")
}

func open(path string) *DB {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		panic(err)
	}
	// sqlite serializes writes internally, a single connection keeps
	// the driver from returning SQLITE_BUSY under concurrent writers
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		panic(err)
	}
	if _, err = db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		panic(err)
	}
	return &DB{DB: db, Path: path}
}
