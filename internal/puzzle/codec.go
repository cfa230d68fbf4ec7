// Package puzzle provides libpuzzle-style image signatures: extraction, compression, and distance.
package puzzle

import (
	"encoding/binary"

	"gonum.org/v1/gonum/floats"

	"github.com/hyperjump/ofn/internal/models"
)

const (
	// MinValue and MaxValue bound every element of a Vector.
	MinValue = -2
	MaxValue = 2

	radix         = MaxValue - MinValue + 1 // 5 symbols per element
	valuesPerByte = 3                       // 5^3 = 125 fits in a byte
	maxPacked     = radix * radix * radix
	maxVectorLen  = 1 << 24
)

// Similarity bands for normalized distance, from libpuzzle.
// SimilarityThreshold is also the default search threshold.
const (
	SimilarityThreshold      = models.DefaultThreshold
	SimilarityHighThreshold  = 0.7
	SimilarityLowThreshold   = 0.3
	SimilarityLowerThreshold = 0.2
)

// Vector is a signature: one quantized luminance difference per grid neighbour pair.
type Vector []int8

// Equal reports whether v and o hold the same values.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Codec compresses vectors and measures the distance between them.
// The zero value is ready to use and safe for concurrent use.
type Codec struct{}

// NewCodec returns a Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Compress packs v into bytes: a uvarint element count followed by one byte per
// three elements in base 5. The output depends only on v.
func (c *Codec) Compress(v Vector) ([]byte, error) {
	out := make([]byte, 0, binary.MaxVarintLen64+(len(v)+valuesPerByte-1)/valuesPerByte)
	out = binary.AppendUvarint(out, uint64(len(v)))
	for i := 0; i < len(v); i += valuesPerByte {
		packed := 0
		for j := 0; j < valuesPerByte; j++ {
			var x int8
			if i+j < len(v) {
				x = v[i+j]
				if x < MinValue || x > MaxValue {
					return nil, models.Errorf(models.KindCodec, "compress", "value %d at offset %d outside [%d, %d]", x, i+j, MinValue, MaxValue)
				}
			}
			packed = packed*radix + int(x-MinValue)
		}
		out = append(out, byte(packed))
	}
	return out, nil
}

// Decompress is the exact inverse of Compress.
func (c *Codec) Decompress(b []byte) (Vector, error) {
	n, k := binary.Uvarint(b)
	if k <= 0 {
		return nil, models.Errorf(models.KindCodec, "decompress", "bad length header")
	}
	if n > maxVectorLen {
		return nil, models.Errorf(models.KindCodec, "decompress", "vector length %d too large", n)
	}
	rest := b[k:]
	if want := (int(n) + valuesPerByte - 1) / valuesPerByte; len(rest) != want {
		return nil, models.Errorf(models.KindCodec, "decompress", "payload is %d bytes, want %d", len(rest), want)
	}
	v := make(Vector, n)
	var digits [valuesPerByte]int
	for g, packed := range rest {
		if int(packed) >= maxPacked {
			return nil, models.Errorf(models.KindCodec, "decompress", "byte %d out of range at %d", packed, g)
		}
		p := int(packed)
		for j := valuesPerByte - 1; j >= 0; j-- {
			digits[j] = p % radix
			p /= radix
		}
		for j, d := range digits {
			idx := g*valuesPerByte + j
			if idx < len(v) {
				v[idx] = int8(d + MinValue)
			} else if d != -MinValue {
				return nil, models.Errorf(models.KindCodec, "decompress", "non-zero padding at %d", g)
			}
		}
	}
	return v, nil
}

// Distance returns ‖a−b‖ / (‖a‖+‖b‖), which lies in [0, 1]. Two zero vectors are at distance 0.
func (c *Codec) Distance(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, models.Errorf(models.KindCodec, "distance", "length mismatch: %d vs %d", len(a), len(b))
	}
	af, bf := toFloat64(a), toFloat64(b)
	norms := floats.Norm(af, 2) + floats.Norm(bf, 2)
	if norms == 0 {
		return 0, nil
	}
	return floats.Distance(af, bf, 2) / norms, nil
}

func toFloat64(v Vector) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
