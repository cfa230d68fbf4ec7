package e2e

import (
	"fmt"
	"image"
)

// Original is a picture committed to the index.
type Original struct {
	Name  string
	Image *image.Gray
}

// QueryTestCase defines a transformed copy of an original and the original that must
// be the best match when it is searched.
type QueryTestCase struct {
	Name        string
	Image       *image.Gray
	Expected    string
	Description string
}

// Corpus holds originals and query test cases for E2E tests.
type Corpus struct {
	Originals    []Original
	TestCases    []QueryTestCase
	TotalImages  int
	TotalQueries int
}

const (
	corpusWidth  = 240
	corpusHeight = 180
)

// BuildCorpus returns n originals and, for each, a half-size copy, a JPEG copy at
// double size, and a brightened copy. Each query file name carries the extension it
// must be written with.
func BuildCorpus(n int) *Corpus {
	c := &Corpus{}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("original-%03d.png", i)
		img := Picture(uint64(i+1), corpusWidth, corpusHeight)
		c.Originals = append(c.Originals, Original{Name: name, Image: img})
		c.TestCases = append(c.TestCases,
			QueryTestCase{
				Name:        fmt.Sprintf("half-%03d.png", i),
				Image:       Resize(img, corpusWidth/2, corpusHeight/2),
				Expected:    name,
				Description: "downscaled to half size",
			},
			QueryTestCase{
				Name:        fmt.Sprintf("double-%03d.jpg", i),
				Image:       Resize(img, corpusWidth*2, corpusHeight*2),
				Expected:    name,
				Description: "upscaled to double size and recompressed as JPEG",
			},
			QueryTestCase{
				Name:        fmt.Sprintf("bright-%03d.bmp", i),
				Image:       Brighten(img, 12),
				Expected:    name,
				Description: "brightened and stored as BMP",
			},
		)
	}
	c.TotalImages = len(c.Originals)
	c.TotalQueries = len(c.TestCases)
	return c
}
