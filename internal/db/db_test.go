package db

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/baxasd/OST-Radar/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign_keys=1, got %d", foreignKeys)
	}
}

func TestApplyPragmas_ClosedDB(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	db.Close()
	if err := applyPragmas(db.DB); err == nil {
		t.Error("Expected error when applying pragmas to closed database")
	}
}

func TestNewDB_CreatesSchema(t *testing.T) {
	db := newTestDB(t)
	for _, table := range []string{"recordings", "recording_frames", "recording_analyses", "schema_migrations"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestNewDBWithMigrationCheck(t *testing.T) {
	dir := t.TempDir()

	t.Run("fresh database is initialised", func(t *testing.T) {
		db, err := NewDBWithMigrationCheck(filepath.Join(dir, "fresh.db"), true)
		if err != nil {
			t.Fatalf("NewDBWithMigrationCheck: %v", err)
		}
		defer db.Close()
		migrations, _ := getMigrationsFS()
		if err := db.CheckMigrations(migrations); err != nil {
			t.Errorf("CheckMigrations after init: %v", err)
		}
	})

	t.Run("outdated database is refused", func(t *testing.T) {
		path := filepath.Join(dir, "old.db")
		db, err := NewDB(path)
		if err != nil {
			t.Fatalf("NewDB: %v", err)
		}
		migrations, _ := getMigrationsFS()
		if err := db.MigrateDown(migrations); err != nil {
			t.Fatalf("MigrateDown: %v", err)
		}
		db.Close()

		if _, err := NewDBWithMigrationCheck(path, true); err == nil {
			t.Fatal("expected out-of-date schema to be refused")
		}
		db, err = NewDBWithMigrationCheck(path, false)
		if err != nil {
			t.Fatalf("NewDBWithMigrationCheck without check: %v", err)
		}
		db.Close()
	})
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, ".db.gz") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	zr, err := gzip.NewReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("backup is not gzip: %v", err)
	}
	header := make([]byte, 16)
	if _, err := io.ReadFull(zr, header); err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !strings.HasPrefix(string(header), "SQLite format 3") {
		t.Errorf("backup header = %q", header)
	}
}
