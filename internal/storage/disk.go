package storage

import (
	"errors"
	"io/fs"
	"os"
)

// sidecars are the files SQLite keeps next to a database in WAL or rollback mode.
var sidecars = []string{"-wal", "-shm", "-journal"}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:"
}

// DatabaseFiles returns dbPath followed by the SQLite sidecar files that may exist for it.
// An in-memory database has no files.
func DatabaseFiles(dbPath string) []string {
	if dbPath == "" || isMemory(dbPath) {
		return nil
	}
	files := []string{dbPath}
	for _, s := range sidecars {
		files = append(files, dbPath+s)
	}
	return files
}

// DiskUsageBytes returns the total size in bytes of the database at dbPath and its
// sidecar files. Missing files contribute 0.
func DiskUsageBytes(dbPath string) (int64, error) {
	var total int64
	for _, p := range DatabaseFiles(dbPath) {
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total, nil
}
