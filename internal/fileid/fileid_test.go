package fileid

import (
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ofn/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDigest_SHA256(t *testing.T) {
	path := writeFile(t, "a.bin", "hello")
	got, err := Digest(path, SHA256)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	want := sha256.Sum256([]byte("hello"))
	if Hex(got) != Hex(want[:]) {
		t.Errorf("Digest = %s, want %s", Hex(got), Hex(want[:]))
	}
}

func TestDigest_Deterministic(t *testing.T) {
	a := writeFile(t, "a.bin", "same bytes")
	b := writeFile(t, "b.bin", "same bytes")
	c := writeFile(t, "c.bin", "other bytes")
	for _, algo := range []string{SHA256, BLAKE2b} {
		da, _ := Digest(a, algo)
		db, _ := Digest(b, algo)
		dc, _ := Digest(c, algo)
		if len(da) != 32 {
			t.Errorf("%s: digest length %d, want 32", algo, len(da))
		}
		if Hex(da) != Hex(db) {
			t.Errorf("%s: same content should give same digest", algo)
		}
		if Hex(da) == Hex(dc) {
			t.Errorf("%s: different content should give different digests", algo)
		}
	}
}

func TestDigest_AlgorithmsDiffer(t *testing.T) {
	path := writeFile(t, "a.bin", "content")
	s, _ := Digest(path, SHA256)
	b, _ := Digest(path, BLAKE2b)
	if Hex(s) == Hex(b) {
		t.Error("sha256 and blake2b digests should differ")
	}
}

func TestDigest_Errors(t *testing.T) {
	_, err := Digest(filepath.Join(t.TempDir(), "missing"), SHA256)
	if !errors.Is(err, models.ErrExtraction) {
		t.Errorf("missing file: expected extraction error, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cause should be preserved, got %v", err)
	}

	path := writeFile(t, "a.bin", "x")
	if _, err := Digest(path, "md5"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("unknown algorithm: expected validation error, got %v", err)
	}
}

func TestNew(t *testing.T) {
	d, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if d.Algorithm() != SHA256 {
		t.Errorf("default algorithm = %q, want %q", d.Algorithm(), SHA256)
	}
	if _, err := New("crc32"); err == nil {
		t.Error("expected error for unknown algorithm")
	}

	path := writeFile(t, "a.bin", "abc")
	got, err := d.Digest(path)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := Digest(path, SHA256)
	if Hex(got) != Hex(want) {
		t.Error("Digester should match Digest")
	}
}
