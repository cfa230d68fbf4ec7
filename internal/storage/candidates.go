package storage

import (
	"github.com/RoaringBitmap/roaring/roaring64"
)

// Candidates is the result of a word lookup: a set of signature IDs and how
// many words each shares with the query.
type Candidates struct {
	ids    *roaring64.Bitmap
	shared map[uint64]int
	// Truncated is set when more signatures matched than the lookup limit allowed.
	Truncated bool
}

// NewCandidates returns an empty candidate set.
func NewCandidates() *Candidates {
	return &Candidates{ids: roaring64.New(), shared: make(map[uint64]int)}
}

// Add records id with its shared-word count. Adding an id twice keeps the larger count.
func (c *Candidates) Add(id int64, shared int) {
	u := uint64(id)
	c.ids.Add(u)
	if shared > c.shared[u] {
		c.shared[u] = shared
	}
}

// Len returns the number of distinct candidates.
func (c *Candidates) Len() int {
	return int(c.ids.GetCardinality())
}

// Contains reports whether id is a candidate.
func (c *Candidates) Contains(id int64) bool {
	return c.ids.Contains(uint64(id))
}

// SharedWords returns how many query words id matched, or 0 if it is not a candidate.
func (c *Candidates) SharedWords(id int64) int {
	return c.shared[uint64(id)]
}

// IDs returns the candidate signature IDs in ascending order.
func (c *Candidates) IDs() []int64 {
	out := make([]int64, 0, c.Len())
	it := c.ids.Iterator()
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out
}

// Bitmap exposes the underlying ID set.
func (c *Candidates) Bitmap() *roaring64.Bitmap {
	return c.ids
}
