// Package models defines core data structures for images, signatures, words, and search results.
package models

import (
	"encoding/hex"
	"time"
)

// Image represents a committed image file.
type Image struct {
	ID        int64     `json:"id" db:"image_id"`
	Ref       string    `json:"ref" db:"ref"`
	Filename  string    `json:"filename" db:"filename"`
	Digest    []byte    `json:"-" db:"digest"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DigestHex returns the content digest as lowercase hex.
func (i *Image) DigestHex() string {
	return hex.EncodeToString(i.Digest)
}

// Signature is the full compressed feature vector of one image.
type Signature struct {
	ID         int64  `json:"id" db:"signature_id"`
	ImageID    int64  `json:"image_id" db:"image_id"`
	Compressed []byte `json:"-" db:"compressed_signature"`
	Size       int    `json:"size" db:"size"`
}

// Word is one compressed window of a signature, keyed by position.
type Word struct {
	SignatureID int64  `json:"signature_id" db:"signature_id"`
	Position    int    `json:"position" db:"position"`
	Compressed  []byte `json:"-" db:"compressed_word"`
}
