// Package sqlite provides a unified SQLite interface supporting both
// pure Go (modernc.org/sqlite) and CGO (mattn/go-sqlite3) implementations.
//
// Build modes:
//   - Default (CGO_ENABLED=0): Uses pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): Uses mattn/go-sqlite3
//
// Use Open() instead of sql.Open() to ensure the correct driver is used.
// Codecs that work on streams use Build and OpenBytes, which stage the
// database in a temporary file.
package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/folio/core/errors"
)

// Magic starts every SQLite database file.
const Magic = "SQLite format 3\x00"

// DriverName returns the SQL driver name to use.
func DriverName() string {
	return driverName
}

// DriverType returns a string identifying the underlying implementation.
// Returns "cgo" for mattn/go-sqlite3, "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database using the appropriate driver.
func Open(dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	return Open("file:" + filepath.ToSlash(path) + "?mode=ro")
}

// Build creates an empty database in a temporary file, lets fill write it
// and returns the finished file content.
func Build(fill func(db *sql.DB) error) ([]byte, error) {
	dir, err := os.MkdirTemp("", "folio-sqlite-*")
	if err != nil {
		return nil, errors.NewIO("create temp dir", "", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "doc.db")
	db, err := Open(path)
	if err != nil {
		return nil, errors.NewIO("open database", path, err)
	}
	// One connection keeps the write order, and so the file, stable.
	db.SetMaxOpenConns(1)
	if err := fill(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, errors.NewIO("close database", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read database", path, err)
	}
	return data, nil
}

// OpenBytes opens a read-only database holding data. The returned close
// function closes the database and removes its temporary file.
func OpenBytes(data []byte) (*sql.DB, func() error, error) {
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return nil, nil, errors.NewParse("sqlite", "", "missing SQLite header")
	}
	dir, err := os.MkdirTemp("", "folio-sqlite-*")
	if err != nil {
		return nil, nil, errors.NewIO("create temp dir", "", err)
	}
	path := filepath.Join(dir, "doc.db")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, nil, errors.NewIO("write database", path, err)
	}
	db, err := OpenReadOnly(path)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, errors.NewIO("open database", path, err)
	}
	closer := func() error {
		err := db.Close()
		os.RemoveAll(dir)
		return err
	}
	return db, closer, nil
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
