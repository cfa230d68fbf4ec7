// Package words splits signatures into overlapping windows used as index keys.
package words

import (
	"github.com/hyperjump/ofn/internal/models"
	"github.com/hyperjump/ofn/internal/puzzle"
)

const (
	DefaultCount  = 100
	DefaultLength = 10
)

// Codec compresses vectors and measures distance. *puzzle.Codec implements it.
type Codec interface {
	Compress(v puzzle.Vector) ([]byte, error)
	Decompress(b []byte) (puzzle.Vector, error)
	Distance(a, b puzzle.Vector) (float64, error)
}

// Encoded is a signature ready to be stored or looked up.
type Encoded struct {
	Full  []byte
	Words [][]byte
}

// Splitter cuts a vector into count sliding windows of length elements each.
type Splitter struct {
	count  int
	length int
	codec  Codec
}

// NewSplitter creates a splitter. A nil codec uses puzzle.NewCodec().
func NewSplitter(count, length int, codec Codec) (*Splitter, error) {
	if count < 1 || length < 1 {
		return nil, models.Errorf(models.KindValidation, "new splitter", "word count and length must be positive, got %d and %d", count, length)
	}
	if codec == nil {
		codec = puzzle.NewCodec()
	}
	return &Splitter{count: count, length: length, codec: codec}, nil
}

// Count is the number of words per signature.
func (s *Splitter) Count() int { return s.count }

// Length is the number of elements per word.
func (s *Splitter) Length() int { return s.length }

// MinVectorLength is the shortest vector Split accepts.
func (s *Splitter) MinVectorLength() int {
	return s.count + s.length - 1
}

// Split returns the windows v[i:i+length] for i in [0, count). Windows are copies.
func (s *Splitter) Split(v puzzle.Vector) ([]puzzle.Vector, error) {
	if len(v) < s.MinVectorLength() {
		return nil, models.Errorf(models.KindValidation, "split", "vector has %d elements, need at least %d", len(v), s.MinVectorLength())
	}
	windows := make([]puzzle.Vector, s.count)
	for i := range windows {
		w := make(puzzle.Vector, s.length)
		copy(w, v[i:i+s.length])
		windows[i] = w
	}
	return windows, nil
}

// CompressWord compresses a single window.
func (s *Splitter) CompressWord(w puzzle.Vector) ([]byte, error) {
	b, err := s.codec.Compress(w)
	if err != nil {
		return nil, asCodecError("compress word", err)
	}
	return b, nil
}

// CompressFull compresses a whole signature.
func (s *Splitter) CompressFull(v puzzle.Vector) ([]byte, error) {
	b, err := s.codec.Compress(v)
	if err != nil {
		return nil, asCodecError("compress signature", err)
	}
	return b, nil
}

// DecompressFull is the inverse of CompressFull.
func (s *Splitter) DecompressFull(b []byte) (puzzle.Vector, error) {
	v, err := s.codec.Decompress(b)
	if err != nil {
		return nil, asCodecError("decompress signature", err)
	}
	return v, nil
}

// Distance returns the normalized distance between two signatures.
func (s *Splitter) Distance(a, b puzzle.Vector) (float64, error) {
	d, err := s.codec.Distance(a, b)
	if err != nil {
		return 0, asCodecError("distance", err)
	}
	return d, nil
}

// Encode compresses v and its words in one pass.
func (s *Splitter) Encode(v puzzle.Vector) (*Encoded, error) {
	windows, err := s.Split(v)
	if err != nil {
		return nil, err
	}
	full, err := s.CompressFull(v)
	if err != nil {
		return nil, err
	}
	enc := &Encoded{Full: full, Words: make([][]byte, len(windows))}
	for i, w := range windows {
		if enc.Words[i], err = s.CompressWord(w); err != nil {
			return nil, err
		}
	}
	return enc, nil
}

// EncodeWords compresses only the words of v, for lookups.
func (s *Splitter) EncodeWords(v puzzle.Vector) ([][]byte, error) {
	windows, err := s.Split(v)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(windows))
	for i, w := range windows {
		if out[i], err = s.CompressWord(w); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func asCodecError(op string, err error) error {
	if models.KindOf(err) == models.KindCodec {
		return err
	}
	return models.NewError(models.KindCodec, op, err)
}
