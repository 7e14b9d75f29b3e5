package db

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeSQLiteDSN(t *testing.T) {
	dsn := normalizeSQLiteDSN("tempy.db")
	if !strings.HasPrefix(dsn, "file:tempy.db?") {
		t.Fatalf("expected file: prefix, got %q", dsn)
	}
	for _, want := range []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected %q in dsn %q", want, dsn)
		}
	}
	if strings.Contains(dsn, "_journal_mode=") || strings.Contains(dsn, "_foreign_keys=") {
		t.Fatalf("mattn-style params are ignored by the driver, got %q", dsn)
	}

	// A DSN that already carries parameters is left alone.
	custom := "file:other.db?_pragma=journal_mode(DELETE)"
	if got := normalizeSQLiteDSN(custom); got != custom {
		t.Fatalf("expected %q unchanged, got %q", custom, got)
	}
}

func TestOpenSQLite(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "tempy-test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := DialectName(conn); got != DialectSQLite {
		t.Fatalf("expected dialect %q, got %q", DialectSQLite, got)
	}

	var mode string
	if errRow := conn.Raw("PRAGMA journal_mode").Scan(&mode).Error; errRow != nil {
		t.Fatalf("read journal_mode: %v", errRow)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("expected WAL journal mode, got %q", mode)
	}
}
