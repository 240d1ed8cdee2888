// Package bayessmooth smooths class-probability rasters with a Bayesian
// neighborhood estimator. Each cell's value is moved through a logit
// transform and blended with its neighborhood mean, weighted by the inverse
// of the respective variances. Missing cells are NaN and stay NaN; degenerate
// neighborhoods surface as NaN in the output rather than as errors.
package bayessmooth

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// probScale is the fixed value scale of input rasters: cells hold
// fractions/percentages mapped onto (0, 10000).
const probScale = 10000

type Options struct {
	// Smoothing window. Whole-number weights; a weight of 0 excludes the
	// tap. Odd dimensions give a well-defined center.
	Window *mat.Dense
	// Assumed measurement noise variance in logit space.
	// Ideal start: 10-30 for class-probability rasters.
	Noise float64
	// Worker goroutines for the raster pass. <=0 runs single-threaded.
	Workers int
}

func DefaultOptions() Options {
	return Options{
		Window:  UniformWindow(7),
		Noise:   20,
		Workers: 1,
	}
}

// Smooth runs the full pass with the bundled parameters.
func (o Options) Smooth(data mat.Matrix) []float64 {
	return SmoothParallel(data, o.Window, o.Noise, o.Workers)
}

// ============ NEIGHBORHOOD ============

// neighborhood collects the weighted values of the usable window taps around
// (row, col), scanning the window in row-major order. A tap contributes
// data(di,dj) * window(k,l) only when it lands inside the raster, its weight
// is positive and the cell is not missing. The result may be empty.
func neighborhood(data, window mat.Matrix, row, col int) []float64 {
	nrow, ncol := data.Dims()
	wrows, wcols := window.Dims()

	var neigh []float64
	for k := 0; k < wrows; k++ {
		for l := 0; l < wcols; l++ {
			di := row + k - wrows/2
			dj := col + l - wcols/2
			if di < 0 || dj < 0 || di >= nrow || dj >= ncol {
				continue
			}
			w := window.At(k, l)
			if w <= 0 {
				continue
			}
			v := data.At(di, dj)
			if math.IsNaN(v) {
				continue
			}
			neigh = append(neigh, v*w)
		}
	}
	return neigh
}

// ============ PIXEL ESTIMATOR ============

// logit maps a probScale-ranged value onto the real line. Values at or
// beyond the scale ends produce ±Inf or NaN, which callers pass through.
func logit(v float64) float64 {
	return math.Log(v / (probScale - v))
}

// estimatePixel blends the cell's own logit value with the neighborhood
// mean, each weighted by the other's share of the total variance. The
// neighbor variance is the unbiased sample variance, so empty and
// single-sample neighborhoods come out NaN and propagate.
func estimatePixel(p float64, neigh []float64, noise float64) float64 {
	if math.IsNaN(p) {
		return math.NaN()
	}
	logNeigh := make([]float64, len(neigh))
	for i, n := range neigh {
		logNeigh[i] = logit(n)
	}
	x := logit(p)
	v := stat.Variance(logNeigh, nil)
	w1 := v / (noise + v)
	w2 := noise / (noise + v)
	return w1*x + w2*stat.Mean(logNeigh, nil)
}

// ============ RASTER PASS ============

// Smooth estimates every cell of data in row-major order and returns the
// flat result, one value per cell. Missing cells stay NaN; cells whose
// neighborhood is degenerate come back NaN as well.
func Smooth(data, window mat.Matrix, noise float64) []float64 {
	nrow, ncol := data.Dims()
	out := make([]float64, nrow*ncol)
	smoothRows(out, data, window, noise, 0, nrow)
	return out
}

// SmoothMatrix is Smooth with the output reshaped to the input's dimensions.
func SmoothMatrix(data, window mat.Matrix, noise float64) *mat.Dense {
	nrow, ncol := data.Dims()
	return mat.NewDense(nrow, ncol, Smooth(data, window, noise))
}

// SmoothParallel is Smooth with rows striped across workers. Cells are
// independent and each worker writes a disjoint range of the shared output,
// so the result matches Smooth bit for bit.
func SmoothParallel(data, window mat.Matrix, noise float64, workers int) []float64 {
	nrow, ncol := data.Dims()
	if workers <= 0 {
		workers = 1
	}
	if workers > nrow {
		workers = max(nrow, 1)
	}
	out := make([]float64, nrow*ncol)
	rowsPer := (nrow + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPer
		end := min(start+rowsPer, nrow)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			smoothRows(out, data, window, noise, start, end)
		}()
	}
	wg.Wait()
	return out
}

func smoothRows(out []float64, data, window mat.Matrix, noise float64, start, end int) {
	_, ncol := data.Dims()
	for i := start; i < end; i++ {
		for j := 0; j < ncol; j++ {
			out[i*ncol+j] = estimatePixel(data.At(i, j), neighborhood(data, window, i, j), noise)
		}
	}
}

// SmoothBands runs one pass per class-probability band with a shared window
// and noise. Bands are independent and run concurrently, at most workers at
// a time.
func SmoothBands(bands []*mat.Dense, window mat.Matrix, noise float64, workers int) [][]float64 {
	if workers <= 0 {
		workers = 1
	}
	out := make([][]float64, len(bands))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for b, band := range bands {
		b, band := b, band
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			out[b] = Smooth(band, window, noise)
			<-sem
		}()
	}
	wg.Wait()
	return out
}
