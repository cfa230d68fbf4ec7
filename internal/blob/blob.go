// Package blob wraps stored signature bytes in an optional compression envelope.
//
// Envelope format: [type byte][uvarint raw size][payload]. Type 0 stores the raw
// bytes. Decoding is driven by the type byte, so a store written with one
// setting stays readable under another.
package blob

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hyperjump/ofn/internal/models"
)

// Type is the compression algorithm of an envelope.
type Type uint8

const (
	None Type = 0
	LZ4  Type = 1
	Zstd Type = 2
)

// maxRawSize bounds the declared raw size so a corrupt header cannot force a huge allocation.
const maxRawSize = 1 << 26

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseType maps a config value to a Type. The empty string is None.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, models.Errorf(models.KindValidation, "blob type", "unknown compression %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode wraps data in an envelope of type t. Data that does not shrink is
// stored as None.
func Encode(data []byte, t Type) ([]byte, error) {
	var payload []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, models.NewError(models.KindCodec, "blob encode", err)
		}
		payload = buf[:n]
	case Zstd:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, models.Errorf(models.KindValidation, "blob encode", "unknown type %d", t)
	}
	if t == None || len(payload) == 0 || len(payload) >= len(data) {
		t, payload = None, data
	}

	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	out = append(out, byte(t))
	out = binary.AppendUvarint(out, uint64(len(data)))
	return append(out, payload...), nil
}

// Decode unwraps an envelope produced by Encode.
func Decode(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, models.NewError(models.KindCodec, "blob decode", errors.New("empty blob"))
	}
	t := Type(b[0])
	size, k := binary.Uvarint(b[1:])
	if k <= 0 || size > maxRawSize {
		return nil, models.NewError(models.KindCodec, "blob decode", errors.New("bad size header"))
	}
	payload := b[1+k:]

	switch t {
	case None:
		if uint64(len(payload)) != size {
			return nil, models.Errorf(models.KindCodec, "blob decode", "payload is %d bytes, header says %d", len(payload), size)
		}
		return payload, nil
	case LZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, models.NewError(models.KindCodec, "blob decode", err)
		}
		if uint64(n) != size {
			return nil, models.NewError(models.KindCodec, "blob decode", errors.New("decompressed size mismatch"))
		}
		return out, nil
	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, models.NewError(models.KindCodec, "blob decode", err)
		}
		if uint64(len(out)) != size {
			return nil, models.NewError(models.KindCodec, "blob decode", errors.New("decompressed size mismatch"))
		}
		return out, nil
	default:
		return nil, models.Errorf(models.KindCodec, "blob decode", "unknown type %d", t)
	}
}
