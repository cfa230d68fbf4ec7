// Package storage defines the persistence interface for images, signatures, and words.
package storage

import (
	"context"

	"github.com/hyperjump/ofn/internal/models"
)

// Store persists committed signatures and answers candidate lookups.
type Store interface {
	// Commit writes the image, its signature, and all of its words atomically.
	Commit(ctx context.Context, filename string, digest, compressed []byte, words [][]byte) (*models.Image, *models.Signature, error)

	// CommitIfAbsent commits unless the digest is already stored, in which case it
	// returns the stored image and false.
	CommitIfAbsent(ctx context.Context, filename string, digest, compressed []byte, words [][]byte) (*models.Image, *models.Signature, bool, error)

	// LookupCandidates returns every signature sharing at least one word with
	// words at the same position, capped at limit (limit <= 0 means no cap).
	LookupCandidates(ctx context.Context, words [][]byte, limit int) (*Candidates, error)

	FetchSignature(ctx context.Context, id int64) (*models.Signature, error)
	FetchImageMeta(ctx context.Context, imageID int64) (*models.Image, error)
	FindImagesByDigest(ctx context.Context, digest []byte) ([]*models.Image, error)

	// Stats
	CountImages(ctx context.Context) (int64, error)
	CountSignatures(ctx context.Context) (int64, error)
	CountWords(ctx context.Context) (int64, error)

	Close() error
}
