package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDatabaseFiles(t *testing.T) {
	if got := DatabaseFiles(":memory:"); got != nil {
		t.Errorf("memory database has files: %v", got)
	}
	got := DatabaseFiles("/data/ofn.db")
	want := []string{"/data/ofn.db", "/data/ofn.db-wal", "/data/ofn.db-shm", "/data/ofn.db-journal"}
	if len(got) != len(want) {
		t.Fatalf("DatabaseFiles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DatabaseFiles()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "ofn.db")

	// Missing database counts as empty.
	got, err := DiskUsageBytes(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("missing database: got %d bytes, want 0", got)
	}

	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	// Unrelated files next to the database are not counted.
	if err := os.WriteFile(filepath.Join(dir, "other.db"), []byte("zzzzzz"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = DiskUsageBytes(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("db+wal: got %d bytes, want 8", got)
	}

	got, err = DiskUsageBytes(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("memory: got %d bytes, want 0", got)
	}
}

func TestDiskUsageBytes_openStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ofn.db")
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	got, err := DiskUsageBytes(db)
	if err != nil {
		t.Fatal(err)
	}
	if got == 0 {
		t.Error("open store should occupy disk space")
	}
}
