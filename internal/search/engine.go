// Package search provides the similarity search engine: commit images and find near-duplicates.
package search

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ofn/internal/blob"
	"github.com/hyperjump/ofn/internal/config"
	"github.com/hyperjump/ofn/internal/fileid"
	"github.com/hyperjump/ofn/internal/models"
	"github.com/hyperjump/ofn/internal/puzzle"
	"github.com/hyperjump/ofn/internal/storage"
	"github.com/hyperjump/ofn/internal/words"
)

// Extractor turns an image file into a signature. *puzzle.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, path string) (puzzle.Vector, error)
}

// DigestFunc returns the content digest of the file at path.
type DigestFunc func(path string) ([]byte, error)

// Stats summarizes the contents of the index.
type Stats struct {
	Images     int64 `json:"images"`
	Signatures int64 `json:"signatures"`
	Words      int64 `json:"words"`
}

// Engine commits images and runs similarity searches against a store.
type Engine struct {
	store     storage.Store
	extractor Extractor
	splitter  *words.Splitter
	config    *config.SearchConfig
	digest    DigestFunc
	blobType  blob.Type
	cache     *SignatureCache
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger; per-candidate failures are reported at warn level.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDigest replaces the content digest function (sha256 by default).
func WithDigest(fn DigestFunc) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.digest = fn
		}
	}
}

// WithBlobCodec sets the envelope used for newly stored signatures.
func WithBlobCodec(t blob.Type) EngineOption {
	return func(e *Engine) { e.blobType = t }
}

// WithCacheSize overrides the decoded signature cache capacity from cfg.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) { e.cache = NewSignatureCache(n) }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	store storage.Store,
	extractor Extractor,
	splitter *words.Splitter,
	cfg *config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:     store,
		extractor: extractor,
		splitter:  splitter,
		config:    cfg,
		digest: func(path string) ([]byte, error) {
			return fileid.Digest(path, fileid.DefaultAlgorithm)
		},
		blobType: blob.None,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewSignatureCache(cfg.CacheSize)
	}
	return e
}

// DefaultOptions returns search options taken from the engine configuration.
func (e *Engine) DefaultOptions() models.SearchOptions {
	return models.SearchOptions{
		Threshold:     e.config.Threshold,
		MaxCandidates: e.config.MaxCandidates,
		Timeout:       e.config.Timeout,
		Limit:         e.config.Limit,
	}
}

// Commit extracts the signature of the image at path and stores it with its words.
// Extraction failures abort before anything is written.
func (e *Engine) Commit(ctx context.Context, path string) (*models.Image, error) {
	img, _, err := e.commit(ctx, "commit", path, false)
	return img, err
}

// CommitNew is Commit for files whose content is not stored yet. When an image with
// the same digest exists it is returned with false and nothing is written.
func (e *Engine) CommitNew(ctx context.Context, path string) (*models.Image, bool, error) {
	return e.commit(ctx, "commit new", path, true)
}

func (e *Engine) commit(ctx context.Context, op, path string, unique bool) (*models.Image, bool, error) {
	v, err := e.extract(ctx, op, path)
	if err != nil {
		return nil, false, err
	}
	digest, err := e.digest(path)
	if err != nil {
		return nil, false, err
	}
	enc, err := e.splitter.Encode(v)
	if err != nil {
		return nil, false, err
	}
	full, err := blob.Encode(enc.Full, e.blobType)
	if err != nil {
		return nil, false, err
	}

	var (
		img       *models.Image
		sig       *models.Signature
		committed = true
	)
	if unique {
		img, sig, committed, err = e.store.CommitIfAbsent(ctx, filepath.Clean(path), digest, full, enc.Words)
	} else {
		img, sig, err = e.store.Commit(ctx, filepath.Clean(path), digest, full, enc.Words)
	}
	if err != nil {
		return nil, false, err
	}
	if !committed {
		return img, false, nil
	}
	e.cache.Set(sig.ID, img.ID, v)
	e.logger.Debug("engine committed image",
		zap.String("path", path),
		zap.Int64("image_id", img.ID),
		zap.Int64("signature_id", sig.ID),
		zap.Int("signature_bytes", sig.Size))
	return img, true, nil
}

// Search finds stored images similar to the image at path.
func (e *Engine) Search(ctx context.Context, path string, opts models.SearchOptions) (*models.SearchResponse, error) {
	v, err := e.extract(ctx, "search", path)
	if err != nil {
		return nil, err
	}
	resp, err := e.SearchVector(ctx, v, opts)
	if err != nil {
		return nil, err
	}
	resp.Query = path
	return resp, nil
}

type scored struct {
	signatureID int64
	imageID     int64
	distance    float64
	shared      int
}

// SearchVector finds stored images similar to an already extracted signature.
// Candidates share at least one word with v; each is re-ranked by exact distance
// and kept when the distance is below the threshold. Candidates that cannot be
// fetched or decoded are skipped with a warning. If the re-rank deadline passes,
// the matches ranked so far are returned with Truncated set.
func (e *Engine) SearchVector(ctx context.Context, v puzzle.Vector, opts models.SearchOptions) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	keys, err := e.splitter.EncodeWords(v)
	if err != nil {
		return nil, err
	}
	cands, err := e.store.LookupCandidates(ctx, keys, opts.MaxCandidates)
	if err != nil {
		return nil, err
	}

	ids := cands.IDs()
	ranked := make([]*scored, len(ids))
	var skipped atomic.Int64

	rctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	g, gctx := errgroup.WithContext(rctx)
	g.SetLimit(e.workers())
	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			s, err := e.rank(gctx, v, id)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				skipped.Add(1)
				e.logger.Warn("engine skipping candidate", zap.Int64("signature_id", id), zap.Error(err))
				return nil
			}
			s.shared = cands.SharedWords(id)
			ranked[i] = s
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	truncated := cands.Truncated
	if errors.Is(rctx.Err(), context.DeadlineExceeded) {
		truncated = true
		e.logger.Warn("engine search deadline exceeded; returning partial results",
			zap.Duration("timeout", opts.Timeout), zap.Int("candidates", len(ids)))
	}

	matches := make([]*scored, 0, len(ranked))
	for _, s := range ranked {
		if s != nil && s.distance < opts.Threshold {
			matches = append(matches, s)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].imageID < matches[j].imageID
	})

	response := &models.SearchResponse{
		Matches:    make([]*models.Match, 0, len(matches)),
		Candidates: len(ids),
		Truncated:  truncated,
	}
	for _, s := range matches {
		if opts.Limit > 0 && len(response.Matches) == opts.Limit {
			break
		}
		img, err := e.store.FetchImageMeta(ctx, s.imageID)
		if err != nil {
			skipped.Add(1)
			e.logger.Warn("engine skipping match without image", zap.Int64("image_id", s.imageID), zap.Error(err))
			continue
		}
		response.Matches = append(response.Matches, &models.Match{
			Image:       img,
			SignatureID: s.signatureID,
			Distance:    s.distance,
			SharedWords: s.shared,
			Rank:        len(response.Matches) + 1,
		})
	}
	response.Skipped = int(skipped.Load())
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// rank loads candidate id, from the cache when possible, and measures its distance to v.
func (e *Engine) rank(ctx context.Context, v puzzle.Vector, id int64) (*scored, error) {
	c, ok := e.cache.Get(id)
	if !ok {
		sig, err := e.store.FetchSignature(ctx, id)
		if err != nil {
			return nil, err
		}
		raw, err := blob.Decode(sig.Compressed)
		if err != nil {
			return nil, err
		}
		vec, err := e.splitter.DecompressFull(raw)
		if err != nil {
			return nil, err
		}
		c = CachedSignature{ImageID: sig.ImageID, Vector: vec}
		e.cache.Set(id, sig.ImageID, vec)
	}
	d, err := e.splitter.Distance(v, c.Vector)
	if err != nil {
		return nil, err
	}
	return &scored{signatureID: id, imageID: c.ImageID, distance: d}, nil
}

func (e *Engine) extract(ctx context.Context, op, path string) (puzzle.Vector, error) {
	v, err := e.extractor.Extract(ctx, path)
	if err != nil {
		if models.KindOf(err) == models.KindUnknown {
			return nil, models.NewError(models.KindExtraction, op, err)
		}
		return nil, err
	}
	return v, nil
}

func (e *Engine) workers() int {
	if e.config.Workers > 0 {
		return e.config.Workers
	}
	return 1
}

// Stats returns the number of stored images, signatures, and words.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	var err error
	if s.Images, err = e.store.CountImages(ctx); err != nil {
		return nil, err
	}
	if s.Signatures, err = e.store.CountSignatures(ctx); err != nil {
		return nil, err
	}
	if s.Words, err = e.store.CountWords(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

// Digest returns the content digest of the file at path using the engine's digest function.
func (e *Engine) Digest(path string) ([]byte, error) {
	return e.digest(path)
}

// Store returns the underlying signature store.
func (e *Engine) Store() storage.Store {
	return e.store
}
