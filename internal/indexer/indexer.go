// Package indexer commits image files and directories into the signature index.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/ofn/internal/models"
	"github.com/hyperjump/ofn/internal/search"
)

// Indexer commits image files through the search engine, skipping files whose
// content is already stored.
type Indexer struct {
	engine *search.Engine
	logger *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file committed, file skipped, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// NewIndexer creates an indexer that commits through engine.
func NewIndexer(engine *search.Engine, opts ...IndexerOption) *Indexer {
	idx := &Indexer{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Result counts the outcome of a directory run.
type Result struct {
	Committed int `json:"committed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// IndexFile commits the image at path. If allowedExts is non-nil and non-empty, the
// file's extension must be in the list (case-insensitive). Returns false without error
// when a file with the same content digest is already stored (incremental sync).
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (bool, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return false, models.Errorf(models.KindValidation, "index file", "extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, models.NewError(models.KindExtraction, "index file", err)
	}
	if !info.Mode().IsRegular() {
		return false, models.Errorf(models.KindValidation, "index file", "not a regular file: %s", absPath)
	}

	digest, err := idx.engine.Digest(absPath)
	if err != nil {
		return false, err
	}
	existing, err := idx.engine.Store().FindImagesByDigest(ctx, digest)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		idx.logger.Debug("indexer skipping stored file",
			zap.String("path", absPath),
			zap.String("stored_as", existing[0].Filename))
		return false, nil
	}

	// CommitNew repeats the digest check under the store's write lock.
	img, committed, err := idx.engine.CommitNew(ctx, absPath)
	if err != nil {
		return false, err
	}
	if !committed {
		idx.logger.Debug("indexer skipping stored file",
			zap.String("path", absPath),
			zap.String("stored_as", img.Filename))
		return false, nil
	}
	idx.logger.Debug("indexer file committed", zap.String("path", absPath), zap.Int64("image_id", img.ID))
	return true, nil
}

// IndexDirectory walks dir recursively and commits each regular file whose extension
// is in allowedExts (if non-nil and non-empty; otherwise all files). Files the
// extractor cannot read are logged and counted as failed; the walk continues. The
// first other error (storage, cancellation) stops the walk and is returned.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (*Result, error) {
	res := &Result{}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return res, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return res, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		committed, indexErr := idx.IndexFile(ctx, path, allowedExts)
		switch {
		case indexErr == nil && committed:
			res.Committed++
		case indexErr == nil:
			res.Skipped++
		case models.KindOf(indexErr) == models.KindExtraction || models.KindOf(indexErr) == models.KindValidation:
			res.Failed++
			idx.logger.Warn("indexer failed to commit file", zap.String("path", path), zap.Error(indexErr))
		default:
			return indexErr
		}
		return nil
	})
	return res, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
