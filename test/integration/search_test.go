// Package integration provides end-to-end tests (requires real storage and image files).
package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ofn/internal/blob"
	"github.com/hyperjump/ofn/internal/config"
	"github.com/hyperjump/ofn/internal/fileid"
	"github.com/hyperjump/ofn/internal/models"
	"github.com/hyperjump/ofn/internal/puzzle"
	"github.com/hyperjump/ofn/internal/search"
	"github.com/hyperjump/ofn/internal/storage"
	"github.com/hyperjump/ofn/internal/words"
	"github.com/hyperjump/ofn/test/e2e"
)

type harness struct {
	dir    string
	dbPath string
	cfg    *config.Config
	store  *storage.SQLiteStore
	engine *search.Engine
}

func newHarness(t *testing.T, driver string, blobType blob.Type) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "ofn.db")
	cfg.Storage.Driver = driver
	cfg.Search.Timeout = time.Minute
	h := &harness{dir: dir, dbPath: cfg.Storage.DatabasePath, cfg: cfg}
	h.open(t, blobType)
	return h
}

func (h *harness) open(t *testing.T, blobType blob.Type) {
	t.Helper()
	store, err := storage.NewSQLiteStore(h.dbPath, storage.WithDriver(h.cfg.Storage.Driver))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	extractor, err := puzzle.NewExtractor(h.cfg.Puzzle, nil)
	require.NoError(t, err)
	splitter, err := words.NewSplitter(h.cfg.Index.WordCount, h.cfg.Index.WordLength, nil)
	require.NoError(t, err)
	digester, err := fileid.New(fileid.BLAKE2b)
	require.NoError(t, err)
	h.store = store
	h.engine = search.NewEngine(store, extractor, splitter, &h.cfg.Search,
		search.WithBlobCodec(blobType),
		search.WithDigest(digester.Digest))
}

func (h *harness) write(t *testing.T, name string, seed uint64, w, ht int) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	img := e2e.Picture(seed, 240, 180)
	if w != 240 || ht != 180 {
		img = e2e.Resize(img, w, ht)
	}
	require.NoError(t, e2e.WriteImage(path, img))
	return path
}

func TestIntegration_CommitAndSearch(t *testing.T) {
	for _, driver := range []string{storage.DriverCGO, storage.DriverPureGo} {
		for _, bt := range []blob.Type{blob.None, blob.LZ4, blob.Zstd} {
			t.Run(fmt.Sprintf("%s/%s", driver, bt), func(t *testing.T) {
				ctx := context.Background()
				h := newHarness(t, driver, bt)

				var originals []*models.Image
				for i := uint64(1); i <= 3; i++ {
					img, err := h.engine.Commit(ctx, h.write(t, fmt.Sprintf("o%d.png", i), i, 240, 180))
					require.NoError(t, err)
					assert.Len(t, img.Digest, 32)
					originals = append(originals, img)
				}

				// A smaller JPEG copy of the second original.
				query := h.write(t, "copy.jpg", 2, 180, 135)
				resp, err := h.engine.Search(ctx, query, models.SearchOptions{})
				require.NoError(t, err)
				require.NotEmpty(t, resp.Matches)
				top := resp.Matches[0]
				assert.Equal(t, originals[1].ID, top.Image.ID)
				assert.Less(t, top.Distance, puzzle.SimilarityThreshold)
				assert.Equal(t, 1, top.Rank)
				assert.Positive(t, top.SharedWords)
				assert.Zero(t, resp.Skipped)

				// Exact self match.
				self, err := h.engine.Search(ctx, originals[0].Filename, models.SearchOptions{})
				require.NoError(t, err)
				require.NotEmpty(t, self.Matches)
				assert.Equal(t, originals[0].ID, self.Matches[0].Image.ID)
				assert.Equal(t, 0.0, self.Matches[0].Distance)
				assert.Equal(t, h.cfg.Index.WordCount, self.Matches[0].SharedWords)

				stats, err := h.engine.Stats(ctx)
				require.NoError(t, err)
				assert.Equal(t, &search.Stats{Images: 3, Signatures: 3, Words: 300}, stats)
			})
		}
	}
}

func TestIntegration_ReopenKeepsIndex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, storage.DriverCGO, blob.Zstd)
	path := h.write(t, "a.png", 42, 240, 180)
	img, err := h.engine.Commit(ctx, path)
	require.NoError(t, err)
	require.NoError(t, h.store.Close())

	// Envelopes written with zstd are readable whatever the engine writes next.
	h.open(t, blob.None)
	resp, err := h.engine.Search(ctx, path, models.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, img.ID, resp.Matches[0].Image.ID)
	assert.Equal(t, img.Ref, resp.Matches[0].Image.Ref)
	assert.Equal(t, path, resp.Matches[0].Image.Filename)
}

func TestIntegration_ReopenWithOtherWordSettingsFails(t *testing.T) {
	h := newHarness(t, storage.DriverCGO, blob.None)
	require.NoError(t, h.store.Close())
	_, err := storage.NewSQLiteStore(h.dbPath, storage.WithWordSettings(50, 10))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestIntegration_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, storage.DriverCGO, blob.None)

	const n = 8
	paths := make([]string, n)
	for i := range paths {
		paths[i] = h.write(t, fmt.Sprintf("c%d.png", i), uint64(200+i), 200, 150)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		g.Go(func() error {
			_, err := h.engine.Commit(gctx, p)
			return err
		})
	}
	require.NoError(t, g.Wait())

	stats, err := h.engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.Images)
	assert.Equal(t, int64(n*h.cfg.Index.WordCount), stats.Words)

	for _, p := range paths {
		found, err := h.store.FindImagesByDigest(ctx, mustDigest(t, p))
		require.NoError(t, err)
		require.Len(t, found, 1)
		resp, err := h.engine.Search(ctx, p, models.SearchOptions{Limit: 1})
		require.NoError(t, err)
		require.Len(t, resp.Matches, 1)
		assert.Equal(t, found[0].ID, resp.Matches[0].Image.ID)
	}
}

// Searches running beside commits see each commit whole: every candidate is
// readable and shares all of its words with the identical query vector.
func TestIntegration_SearchSeesWholeCommits(t *testing.T) {
	for _, driver := range []string{storage.DriverCGO, storage.DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, driver, blob.Zstd)
			splitter, err := words.NewSplitter(h.cfg.Index.WordCount, h.cfg.Index.WordLength, nil)
			require.NoError(t, err)
			// No cache, so every candidate is read back from the store.
			engine := search.NewEngine(h.store, nil, splitter, &h.cfg.Search, search.WithCacheSize(0))

			extractor, err := puzzle.NewExtractor(h.cfg.Puzzle, nil)
			require.NoError(t, err)
			v, err := extractor.ExtractImage(e2e.Picture(77, 240, 180))
			require.NoError(t, err)
			enc, err := splitter.Encode(v)
			require.NoError(t, err)
			full, err := blob.Encode(enc.Full, blob.Zstd)
			require.NoError(t, err)

			const (
				commits  = 40
				searches = 40
				readers  = 4
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				for i := 0; i < commits; i++ {
					if _, _, err := h.store.Commit(gctx, fmt.Sprintf("same-%d.png", i), nil, full, enc.Words); err != nil {
						return err
					}
				}
				return nil
			})
			for r := 0; r < readers; r++ {
				g.Go(func() error {
					seen := 0
					for i := 0; i < searches; i++ {
						resp, err := engine.SearchVector(gctx, v, models.SearchOptions{})
						if err != nil {
							return err
						}
						if resp.Skipped != 0 {
							return fmt.Errorf("search %d skipped %d candidates", i, resp.Skipped)
						}
						if len(resp.Matches) < seen {
							return fmt.Errorf("search %d saw %d matches after %d", i, len(resp.Matches), seen)
						}
						seen = len(resp.Matches)
						for _, m := range resp.Matches {
							if m.SharedWords != h.cfg.Index.WordCount {
								return fmt.Errorf("image %d matched with %d of %d words", m.Image.ID, m.SharedWords, h.cfg.Index.WordCount)
							}
							if m.Distance != 0 {
								return fmt.Errorf("image %d at distance %v", m.Image.ID, m.Distance)
							}
						}
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			resp, err := engine.SearchVector(ctx, v, models.SearchOptions{})
			require.NoError(t, err)
			assert.Len(t, resp.Matches, commits)
		})
	}
}

func mustDigest(t *testing.T, path string) []byte {
	t.Helper()
	d, err := fileid.Digest(path, fileid.BLAKE2b)
	require.NoError(t, err)
	return d
}
