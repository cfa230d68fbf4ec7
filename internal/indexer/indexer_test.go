package indexer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ofn/internal/config"
	"github.com/hyperjump/ofn/internal/models"
	"github.com/hyperjump/ofn/internal/puzzle"
	"github.com/hyperjump/ofn/internal/search"
	"github.com/hyperjump/ofn/internal/storage"
	"github.com/hyperjump/ofn/internal/words"
)

var imageExts = []string{".png", ".jpg"}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".png", []string{".png", ".jpg"}, true},
		{".PNG", []string{".png"}, true},
		{"png", []string{".png"}, true},
		{".jpg", []string{"jpg"}, true},
		{".txt", []string{".png"}, false},
		{"", []string{".png"}, false},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func testIndexer(t *testing.T, dir string) (*Indexer, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "ofn.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ext, err := puzzle.NewExtractor(puzzle.DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	splitter, err := words.NewSplitter(words.DefaultCount, words.DefaultLength, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.SearchConfig{Threshold: 0.6, MaxCandidates: 100, Timeout: 10 * time.Second, Workers: 2}
	engine := search.NewEngine(store, ext, splitter, cfg)
	return NewIndexer(engine), store
}

// writeImage writes a textured PNG; phase shifts the pattern so different phases
// give different files.
func writeImage(t *testing.T, path string, phase float64) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 120, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 120; x++ {
			v := 128 + 100*math.Sin(float64(x)/9+phase)*math.Cos(float64(y)/13)
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestIndexFile_commitAndSkip(t *testing.T) {
	dir := t.TempDir()
	idx, store := testIndexer(t, dir)
	ctx := context.Background()
	path := filepath.Join(dir, "a.png")
	writeImage(t, path, 0)

	committed, err := idx.IndexFile(ctx, path, imageExts)
	if err != nil {
		t.Fatal(err)
	}
	if !committed {
		t.Error("first IndexFile should commit")
	}

	committed, err = idx.IndexFile(ctx, path, imageExts)
	if err != nil {
		t.Fatal(err)
	}
	if committed {
		t.Error("unchanged file should be skipped")
	}

	// Same bytes under another name are skipped too.
	data, _ := os.ReadFile(path)
	copyPath := filepath.Join(dir, "copy.png")
	if err := os.WriteFile(copyPath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if committed, _ := idx.IndexFile(ctx, copyPath, imageExts); committed {
		t.Error("file with stored digest should be skipped")
	}

	n, _ := store.CountImages(ctx)
	if n != 1 {
		t.Errorf("expected 1 image, got %d", n)
	}
}

func TestIndexFile_extensionFiltered(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t, dir)
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := idx.IndexFile(context.Background(), path, imageExts)
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for filtered extension, got %v", err)
	}
}

func TestIndexFile_notRegularFile(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t, dir)
	if _, err := idx.IndexFile(context.Background(), dir, nil); err == nil {
		t.Error("expected error when indexing a directory")
	}
}

func TestIndexFile_nonexistent(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t, dir)
	_, err := idx.IndexFile(context.Background(), filepath.Join(dir, "missing.png"), imageExts)
	if !errors.Is(err, models.ErrExtraction) {
		t.Errorf("expected extraction error, got %v", err)
	}
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	idx, store := testIndexer(t, dir)
	ctx := context.Background()

	photos := filepath.Join(dir, "photos")
	if err := os.MkdirAll(filepath.Join(photos, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeImage(t, filepath.Join(photos, "a.png"), 0)
	writeImage(t, filepath.Join(photos, "nested", "b.png"), 1.5)
	if err := os.WriteFile(filepath.Join(photos, "readme.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(photos, "broken.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := idx.IndexDirectory(ctx, photos, imageExts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Committed != 2 || res.Failed != 1 || res.Skipped != 0 {
		t.Errorf("first run = %+v, want 2 committed, 1 failed", res)
	}

	res, err = idx.IndexDirectory(ctx, photos, imageExts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Committed != 0 || res.Skipped != 2 {
		t.Errorf("second run = %+v, want 2 skipped", res)
	}

	n, _ := store.CountSignatures(ctx)
	if n != 2 {
		t.Errorf("expected 2 signatures, got %d", n)
	}
}

func TestIndexDirectory_notDirectory(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t, dir)
	path := filepath.Join(dir, "a.png")
	writeImage(t, path, 0)
	if _, err := idx.IndexDirectory(context.Background(), path, nil); err == nil {
		t.Error("expected error for non-directory")
	}
}

func TestIndexFile_concurrentSameContent(t *testing.T) {
	dir := t.TempDir()
	idx, store := testIndexer(t, dir)
	ctx := context.Background()
	src := filepath.Join(dir, "a.png")
	writeImage(t, src, 1)
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	// Several names for one content, indexed at once like index and watch racing.
	const n = 6
	paths := []string{src}
	for i := 1; i < n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("copy-%d.png", i))
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	var committed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		g.Go(func() error {
			ok, err := idx.IndexFile(gctx, p, imageExts)
			if ok {
				committed.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := committed.Load(); got != 1 {
		t.Errorf("%d IndexFile calls committed, want 1", got)
	}
	if n, _ := store.CountImages(ctx); n != 1 {
		t.Errorf("expected 1 image, got %d", n)
	}
}
