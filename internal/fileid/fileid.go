// Package fileid computes content digests used to identify committed image files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/hyperjump/ofn/internal/models"
)

// Supported digest algorithms.
const (
	SHA256  = "sha256"
	BLAKE2b = "blake2b"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = SHA256

// Digester hashes file contents with a fixed algorithm.
type Digester struct {
	algo string
}

// New returns a Digester for algo ("" selects DefaultAlgorithm).
func New(algo string) (*Digester, error) {
	if algo == "" {
		algo = DefaultAlgorithm
	}
	if _, err := newHash(algo); err != nil {
		return nil, err
	}
	return &Digester{algo: algo}, nil
}

// Algorithm returns the configured algorithm name.
func (d *Digester) Algorithm() string { return d.algo }

// Digest streams the file at path through the configured hash.
func (d *Digester) Digest(path string) ([]byte, error) {
	return Digest(path, d.algo)
}

// Digest returns the 32-byte digest of the file at path.
// A file that cannot be read yields an extraction error.
func Digest(path, algo string) ([]byte, error) {
	h, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewError(models.KindExtraction, "digest", err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return nil, models.NewError(models.KindExtraction, "digest", err)
	}
	return h.Sum(nil), nil
}

// Hex formats a digest for display.
func Hex(digest []byte) string {
	return hex.EncodeToString(digest)
}

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case SHA256, "":
		return sha256.New(), nil
	case BLAKE2b:
		return blake2b.New256(nil)
	default:
		return nil, models.Errorf(models.KindValidation, "digest", "unknown algorithm %q", algo)
	}
}
