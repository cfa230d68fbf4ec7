// Package watcher commits images as they appear in watched directories.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// FileIndexer commits a single file. *indexer.Indexer implements it.
type FileIndexer interface {
	IndexFile(ctx context.Context, path string, allowedExts []string) (bool, error)
}

// Counts is the running outcome of files handled by a watcher.
type Counts struct {
	Committed int64 `json:"committed"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// Watcher watches image directories and commits new or rewritten files after a
// debounce period. Removed files are logged only; stored signatures are kept.
type Watcher struct {
	indexer    FileIndexer
	roots      []string
	extensions []string
	recursive  bool
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	committed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for file events and commit outcomes.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a path must stay quiet before it is committed.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. Only files whose extension is in
// extensions are committed (all files when empty).
func NewWatcher(idx FileIndexer, roots, extensions []string, recursive bool, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		indexer:    idx,
		roots:      append([]string(nil), roots...),
		extensions: extensions,
		recursive:  recursive,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. The watcher runs until ctx
// is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for i, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			_ = fsw.Close()
			return err
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			_ = fsw.Close()
			return err
		}
		if err := w.addTree(fsw, abs); err != nil {
			_ = fsw.Close()
			return err
		}
		w.roots[i] = abs
	}
	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("watcher started",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	go w.run(w.ctx, fsw)
	return nil
}

// addTree watches dir, and its subdirectories when recursive.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	if !w.recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				w.handleNewDirectory(ctx, fsw, path)
			}
			return
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelPending(path)
		if matchExtension(path, w.extensions) {
			w.logger.Info("watcher image removed; stored signatures kept", zap.String("path", path))
		}
	}
}

// handleNewDirectory starts watching a directory created or moved under a root
// and commits the images already inside it.
func (w *Watcher) handleNewDirectory(ctx context.Context, fsw *fsnotify.Watcher, dir string) {
	if !w.recursive {
		return
	}
	if err := w.addTree(fsw, dir); err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	} else {
		w.logger.Debug("watcher added new directory", zap.String("path", dir))
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.index(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.inflight.Done()
	}
	ctx := w.ctx
	w.inflight.Add(1)
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		defer w.inflight.Done()
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.index(ctx, path)
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			w.inflight.Done()
		}
		delete(w.pending, path)
	}
}

func (w *Watcher) index(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	committed, err := w.indexer.IndexFile(ctx, path, w.extensions)
	switch {
	case err != nil:
		w.failed.Add(1)
		w.logger.Warn("watcher failed to commit file", zap.String("path", path), zap.Error(err))
	case committed:
		w.committed.Add(1)
		w.logger.Info("watcher committed file", zap.String("path", path))
	default:
		w.skipped.Add(1)
		w.logger.Debug("watcher skipped stored file", zap.String("path", path))
	}
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := w.roots
	w.mu.Unlock()
	for _, root := range roots {
		if inDir(root, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// Directories returns the watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Counts returns how many files have been committed, skipped, and failed so far.
func (w *Watcher) Counts() Counts {
	return Counts{
		Committed: w.committed.Load(),
		Skipped:   w.skipped.Load(),
		Failed:    w.failed.Load(),
	}
}

// Stop stops watching, drops pending commits, and waits for running commits to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		if t.Stop() {
			w.inflight.Done()
		}
		delete(w.pending, path)
	}
	w.cancel()
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	_ = fsw.Close()
	w.inflight.Wait()
	w.logger.Info("watcher stopped")
}
