// Package e2e provides end-to-end tests; this file renders synthetic pictures and writes them
// in every supported image format.
package e2e

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// SupportedFileExtensions is the list of file extensions used in E2E file-based tests.
// WebP is decoded by the extractor but has no encoder in the ecosystem packages we use.
var SupportedFileExtensions = []string{".png", ".jpg", ".gif", ".bmp", ".tif"}

// grayPalette maps palette index i to gray level i so GIF output is lossless for *image.Gray.
var grayPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{Y: uint8(i)}
	}
	return p
}()

// Picture renders a deterministic w×h picture for seed: a coarse grid of random
// gray levels, bilinearly interpolated so the result looks like a blurred photo.
func Picture(seed uint64, w, h int) *image.Gray {
	const gw, gh = 7, 5
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var grid [gh][gw]float64
	for y := range grid {
		for x := range grid[y] {
			grid[y][x] = float64(30 + r.IntN(196))
		}
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		fy := float64(y) * float64(gh-1) / float64(h-1)
		y0 := min(int(fy), gh-2)
		ty := fy - float64(y0)
		for x := 0; x < w; x++ {
			fx := float64(x) * float64(gw-1) / float64(w-1)
			x0 := min(int(fx), gw-2)
			tx := fx - float64(x0)
			top := grid[y0][x0]*(1-tx) + grid[y0][x0+1]*tx
			bottom := grid[y0+1][x0]*(1-tx) + grid[y0+1][x0+1]*tx
			img.SetGray(x, y, color.Gray{Y: uint8(top*(1-ty) + bottom*ty + 0.5)})
		}
	}
	return img
}

// Resize returns img scaled to w×h with Catmull-Rom resampling.
func Resize(img *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Brighten returns a copy of img with delta added to every pixel, clamped to [0, 255].
func Brighten(img *image.Gray, delta int) *image.Gray {
	dst := image.NewGray(img.Bounds())
	for i, p := range img.Pix {
		dst.Pix[i] = uint8(max(0, min(255, int(p)+delta)))
	}
	return dst
}

// WriteImage encodes img to path in the format named by the path's extension.
func WriteImage(path string, img *image.Gray) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(f, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case ".gif":
		p := image.NewPaletted(img.Bounds(), grayPalette)
		copy(p.Pix, img.Pix)
		err = gif.Encode(f, p, nil)
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = fmt.Errorf("unsupported image extension %q", ext)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
