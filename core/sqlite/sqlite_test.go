package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/folio/core/errors"
)

func TestDriverInfo(t *testing.T) {
	info := GetInfo()
	if info.DriverName != DriverName() || info.DriverType != DriverType() || info.IsCGO != IsCGO() {
		t.Errorf("GetInfo() = %+v is inconsistent with the driver functions", info)
	}
	if info.Package == "" {
		t.Error("Package should not be empty")
	}
}

func TestDriverTypeConsistency(t *testing.T) {
	switch DriverType() {
	case "purego":
		if IsCGO() || DriverName() != "sqlite" {
			t.Errorf("purego driver: IsCGO() = %v, DriverName() = %q", IsCGO(), DriverName())
		}
	case "cgo":
		if !IsCGO() || DriverName() != "sqlite3" {
			t.Errorf("cgo driver: IsCGO() = %v, DriverName() = %q", IsCGO(), DriverName())
		}
	default:
		t.Errorf("unknown driver type: %s", DriverType())
	}
}

func TestOpenReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO test (value) VALUES (?)`, "readonly"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	ro, err := OpenReadOnly(dbPath)
	if err != nil {
		t.Fatalf("OpenReadOnly() error = %v", err)
	}
	defer ro.Close()
	var value string
	if err := ro.QueryRow(`SELECT value FROM test WHERE id = 1`).Scan(&value); err != nil {
		t.Fatal(err)
	}
	if value != "readonly" {
		t.Errorf("value = %q, want %q", value, "readonly")
	}
	if _, err := ro.Exec(`INSERT INTO test (value) VALUES ('x')`); err == nil {
		t.Error("insert into a read-only database succeeded")
	}
}

func TestBuildAndOpenBytes(t *testing.T) {
	data, err := Build(func(db *sql.DB) error {
		if _, err := db.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v BLOB)`); err != nil {
			return err
		}
		_, err := db.Exec(`INSERT INTO kv VALUES (?, ?)`, "a", []byte{0, 1, 2})
		return err
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if string(data[:len(Magic)]) != Magic {
		t.Fatalf("header = %q", data[:len(Magic)])
	}

	db, closeDB, err := OpenBytes(data)
	if err != nil {
		t.Fatalf("OpenBytes() error = %v", err)
	}
	defer closeDB()
	var v []byte
	if err := db.QueryRow(`SELECT v FROM kv WHERE k = 'a'`).Scan(&v); err != nil {
		t.Fatal(err)
	}
	if string(v) != "\x00\x01\x02" {
		t.Errorf("v = %q", v)
	}
}

func TestBuildError(t *testing.T) {
	want := errors.NewValidation("fill", "stop")
	if _, err := Build(func(*sql.DB) error { return want }); err != want {
		t.Errorf("Build() error = %v, want %v", err, want)
	}
}

func TestOpenBytesRejects(t *testing.T) {
	for _, data := range []string{"", "SQLite format 2\x00", "not a database at all"} {
		if _, _, err := OpenBytes([]byte(data)); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("OpenBytes(%q) error = %v, want %v", data, err, errors.ErrInvalidInput)
		}
	}
}
