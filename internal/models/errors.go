package models

import (
	"errors"
	"fmt"
)

// Kind classifies failures across the commit and search paths.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation is a malformed input, e.g. a vector too short to split.
	KindValidation
	// KindCodec is a compression or decompression failure.
	KindCodec
	// KindExtraction means the feature extractor could not process the file.
	KindExtraction
	// KindStorage is an I/O, prepare, bind, or step failure in the store.
	KindStorage
	// KindConnection means the store could not be opened.
	KindConnection
	// KindNotFound means a referenced signature or image is absent.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCodec:
		return "codec"
	case KindExtraction:
		return "extraction"
	case KindStorage:
		return "storage"
	case KindConnection:
		return "connection"
	case KindNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrCodec      = &Error{Kind: KindCodec}
	ErrExtraction = &Error{Kind: KindExtraction}
	ErrStorage    = &Error{Kind: KindStorage}
	ErrConnection = &Error{Kind: KindConnection}
	ErrNotFound   = &Error{Kind: KindNotFound}
)

// Error is a tagged failure. The originating cause is reachable via errors.Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError returns an Error of the given kind for op, wrapping err.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is NewError with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
