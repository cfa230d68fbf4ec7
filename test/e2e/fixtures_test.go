package e2e

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ofn/internal/puzzle"
)

func TestWriteImage_allFormatsExtract(t *testing.T) {
	dir := t.TempDir()
	ext, err := puzzle.NewExtractor(puzzle.DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	codec := puzzle.NewCodec()
	img := Picture(7, 160, 120)

	ref, err := ext.ExtractImage(img)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range SupportedFileExtensions {
		path := filepath.Join(dir, "picture"+e)
		if err := WriteImage(path, img); err != nil {
			t.Fatalf("WriteImage(%s): %v", e, err)
		}
		v, err := ext.Extract(context.Background(), path)
		if err != nil {
			t.Errorf("Extract(%s): %v", e, err)
			continue
		}
		d, err := codec.Distance(ref, v)
		if err != nil {
			t.Fatal(err)
		}
		if d >= puzzle.SimilarityLowThreshold {
			t.Errorf("%s distance to source = %.3f, want < %.1f", e, d, puzzle.SimilarityLowThreshold)
		}
	}
}

func TestWriteImage_unsupported(t *testing.T) {
	if err := WriteImage(filepath.Join(t.TempDir(), "x.xyz"), Picture(1, 8, 8)); err == nil {
		t.Error("expected error for unsupported extension")
	}
}
