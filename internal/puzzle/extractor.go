package puzzle

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sort"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/stat"

	"github.com/hyperjump/ofn/internal/models"
)

// Extractor computes signatures from image files.
type Extractor struct {
	params Params
	logger *zap.Logger
}

// NewExtractor creates an extractor. A nil logger is replaced by a no-op logger.
func NewExtractor(params Params, logger *zap.Logger) (*Extractor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{params: params, logger: logger}, nil
}

// Params returns the extraction parameters.
func (e *Extractor) Params() Params {
	return e.params
}

// Extract decodes the image at path and returns its signature.
func (e *Extractor) Extract(ctx context.Context, path string) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewError(models.KindExtraction, "extract", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewError(models.KindExtraction, "extract", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, models.NewError(models.KindExtraction, "extract", fmt.Errorf("decode %s: %w", path, err))
	}
	if err := ctx.Err(); err != nil {
		return nil, models.NewError(models.KindExtraction, "extract", err)
	}

	v, err := e.ExtractImage(img)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("extractor extracted signature",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return v, nil
}

// ExtractImage returns the signature of an already decoded image.
func (e *Extractor) ExtractImage(img image.Image) (Vector, error) {
	g := e.grayscale(img)
	b := g.Bounds()
	minDim := e.params.MinDimension()
	if b.Dx() < minDim || b.Dy() < minDim {
		return nil, models.Errorf(models.KindExtraction, "extract", "image is %dx%d, need at least %dx%d", b.Dx(), b.Dy(), minDim, minDim)
	}

	view := image.Rect(0, 0, b.Dx(), b.Dy())
	if e.params.AutoCrop {
		view = e.autocrop(g)
	}
	avg := e.gridAverages(g, view)
	return e.quantize(neighbourDiffs(avg, e.params.Lambdas)), nil
}

// grayscale converts img to an 8-bit luminance image at the origin, scaling it
// down to fit within the maximum dimensions.
func (e *Extractor) grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > e.params.MaxWidth || h > e.params.MaxHeight {
		scale := math.Min(float64(e.params.MaxWidth)/float64(w), float64(e.params.MaxHeight)/float64(h))
		dw := max(1, int(float64(w)*scale))
		dh := max(1, int(float64(h)*scale))
		dst := image.NewGray(image.Rect(0, 0, dw, dh))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		e.logger.Debug("extractor downscaled oversized image",
			zap.Int("width", w), zap.Int("height", h),
			zap.Int("scaled_width", dw), zap.Int("scaled_height", dh))
		return dst
	}
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// autocrop trims low-contrast borders. Lines are dropped from each side while
// their cumulative contrast stays under ContrastBarrier of the total, up to
// MaxCroppingRatio of the axis.
func (e *Extractor) autocrop(g *image.Gray) image.Rectangle {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	rows := make([]float64, h)
	cols := make([]float64, w)
	for y := 0; y < h; y++ {
		line := g.Pix[y*g.Stride : y*g.Stride+w]
		for x := 1; x < w; x++ {
			rows[y] += absDiff(line[x], line[x-1])
		}
		if y > 0 {
			prev := g.Pix[(y-1)*g.Stride : (y-1)*g.Stride+w]
			for x := 0; x < w; x++ {
				cols[x] += absDiff(line[x], prev[x])
			}
		}
	}
	minLen := e.params.MinDimension()
	x0, x1 := cropAxis(cols, e.params.ContrastBarrier, e.params.MaxCroppingRatio, minLen)
	y0, y1 := cropAxis(rows, e.params.ContrastBarrier, e.params.MaxCroppingRatio, minLen)
	return image.Rect(x0, y0, x1, y1)
}

func cropAxis(contrasts []float64, barrier, maxRatio float64, minLen int) (int, int) {
	n := len(contrasts)
	var total float64
	for _, c := range contrasts {
		total += c
	}
	if total == 0 {
		return 0, n
	}
	limit := int(float64(n) * maxRatio)
	cutoff := total * barrier

	lo, acc := 0, 0.0
	for lo < limit && acc+contrasts[lo] < cutoff {
		acc += contrasts[lo]
		lo++
	}
	hi := n
	acc = 0
	for n-hi < limit && acc+contrasts[hi-1] < cutoff {
		acc += contrasts[hi-1]
		hi--
	}
	if hi-lo < minLen {
		return 0, n
	}
	return lo, hi
}

// gridAverages returns the mean luminance of a p×p box around each of the
// Lambdas×Lambdas grid points inside view, in row-major order.
func (e *Extractor) gridAverages(g *image.Gray, view image.Rectangle) []float64 {
	l := e.params.Lambdas
	w, h := view.Dx(), view.Dy()
	p := int(math.Round(float64(min(w, h)) / (float64(l+1) * e.params.PRatio)))
	p = max(p, 2)

	avg := make([]float64, 0, l*l)
	for ly := 0; ly < l; ly++ {
		cy := view.Min.Y + (ly+1)*h/(l+1)
		for lx := 0; lx < l; lx++ {
			cx := view.Min.X + (lx+1)*w/(l+1)
			box := image.Rect(cx-p/2, cy-p/2, cx-p/2+p, cy-p/2+p).Intersect(view)
			avg = append(avg, boxMean(g, box))
		}
	}
	return avg
}

func boxMean(g *image.Gray, r image.Rectangle) float64 {
	if r.Empty() {
		return 0
	}
	var sum int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for _, px := range g.Pix[y*g.Stride+r.Min.X : y*g.Stride+r.Max.X] {
			sum += int(px)
		}
	}
	return float64(sum) / float64(r.Dx()*r.Dy())
}

// neighbourDiffs emits, for each grid point in row-major order, the difference
// between each in-grid 8-neighbour and the point itself.
func neighbourDiffs(avg []float64, l int) []float64 {
	diffs := make([]float64, 0, 4*l*(l-1)+4*(l-1)*(l-1))
	for y := 0; y < l; y++ {
		for x := 0; x < l; x++ {
			ref := avg[y*l+x]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= l || ny >= l {
						continue
					}
					diffs = append(diffs, avg[ny*l+nx]-ref)
				}
			}
		}
	}
	return diffs
}

// quantize maps differences to [-2, 2]. Differences within the noise cutoff
// become 0; the rest become ±1 or ±2 split at the median of their sign group.
func (e *Extractor) quantize(diffs []float64) Vector {
	cutoff := e.params.NoiseCutoff
	var lights, darks []float64
	for _, d := range diffs {
		switch {
		case d > cutoff:
			lights = append(lights, d)
		case d < -cutoff:
			darks = append(darks, d)
		}
	}
	lightMedian := median(lights)
	darkMedian := median(darks)

	v := make(Vector, len(diffs))
	for i, d := range diffs {
		switch {
		case d > cutoff && d >= lightMedian:
			v[i] = 2
		case d > cutoff:
			v[i] = 1
		case d < -cutoff && d <= darkMedian:
			v[i] = -2
		case d < -cutoff:
			v[i] = -1
		}
	}
	return v
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sort.Float64s(xs)
	return stat.Quantile(0.5, stat.Empirical, xs, nil)
}

func absDiff(a, b uint8) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}
