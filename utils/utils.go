// Package utils holds the image-facing helpers around the smoothing kernel:
// raster conversion, rendering, k-means classification and class palettes.
package utils

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"slices"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"gonum.org/v1/gonum/mat"
)

// probScale mirrors the kernel's fixed raster value scale.
const probScale = 10000.0

// RasterFromImage converts img to a probability raster: luminance mapped
// onto [0, probScale], fully transparent pixels marked missing (NaN).
func RasterFromImage(img image.Image) *mat.Dense {
	b := img.Bounds()
	h := b.Dy()
	w := b.Dx()
	m := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if a == 0 {
				m.Set(y, x, math.NaN())
				continue
			}
			lum := 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(bl)
			m.Set(y, x, lum/65535.0*probScale)
		}
	}
	return m
}

// ReadRaster decodes the image at path into a probability raster.
func ReadRaster(path string) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read raster: %w", err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("read raster %s: %w", path, err)
	}
	return RasterFromImage(img), nil
}

// GrayImage renders m on a linear [lo, hi] ramp to 8-bit gray. Missing and
// non-finite cells come out black.
func GrayImage(m *mat.Dense, lo, hi float64) *image.Gray {
	h, w := m.Dims()
	img := image.NewGray(image.Rect(0, 0, w, h))
	span := hi - lo
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := m.At(y, x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			t := 0.0
			if span != 0 {
				t = (v - lo) / span
			}
			t = min(1, max(0, t))
			img.SetGray(x, y, color.Gray{Y: uint8(t * 255)})
		}
	}
	return img
}

// HeatImage renders m as a Lab-space gradient between cold and warm over
// [lo, hi]. Missing and non-finite cells are fully transparent.
func HeatImage(m *mat.Dense, lo, hi float64, cold, warm colorful.Color) *image.NRGBA {
	h, w := m.Dims()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	span := hi - lo
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := m.At(y, x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			t := 0.0
			if span != 0 {
				t = (v - lo) / span
			}
			t = min(1, max(0, t))
			c := cold.BlendLab(warm, t).Clamped()
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(c.R * 255),
				G: uint8(c.G * 255),
				B: uint8(c.B * 255),
				A: 255,
			})
		}
	}
	return img
}

// ClassifyValues clusters the finite entries of values into k classes with
// k-means and assigns every entry the label of its nearest cluster center.
// Non-finite entries get label -1. Labels are ordered by ascending center,
// so class 0 is always the lowest value band.
func ClassifyValues(values []float64, k int) ([]int, error) {
	dataset := make(clusters.Observations, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			dataset = append(dataset, clusters.Coordinates{v})
		}
	}
	if k <= 0 || len(dataset) < k {
		return nil, fmt.Errorf("classify: need at least %d finite values, have %d", k, len(dataset))
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	centers := make([]float64, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) > 0 {
			centers = append(centers, c.Center[0])
		}
	}
	if len(centers) == 0 {
		return nil, fmt.Errorf("classify: partition produced no centers")
	}
	slices.Sort(centers)

	labels := make([]int, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			labels[i] = -1
			continue
		}
		best := 0
		bestD := math.Abs(v - centers[0])
		for ci := 1; ci < len(centers); ci++ {
			d := math.Abs(v - centers[ci])
			if d < bestD {
				bestD = d
				best = ci
			}
		}
		labels[i] = best
	}
	return labels, nil
}

// ClassifyRaster is ClassifyValues over a raster in row-major order.
func ClassifyRaster(m *mat.Dense, k int) ([]int, error) {
	h, w := m.Dims()
	values := make([]float64, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			values = append(values, m.At(y, x))
		}
	}
	return ClassifyValues(values, k)
}

// ClassImage paints row-major labels (w×h) with the palette. Label -1 and
// labels past the palette end stay transparent.
func ClassImage(labels []int, w, h int, palette []colorful.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			label := labels[y*w+x]
			if label < 0 || label >= len(palette) {
				continue
			}
			c := palette[label].Clamped()
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(c.R * 255),
				G: uint8(c.G * 255),
				B: uint8(c.B * 255),
				A: 255,
			})
		}
	}
	return img
}

// ClassPalette picks k visually distinct class colors from a reference
// image. Candidates come from dominantcolor; if that yields nothing, a
// k-means pass over the raw pixels does. Selection greedily maximizes the
// minimum Lab distance to the colors already chosen, seeded with the
// heaviest candidate.
func ClassPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}
	type candidate struct {
		col    colorful.Color
		weight float64
	}
	var cands []candidate
	for _, c := range dominantcolor.FindWeight(img, max(16, k*6)) {
		col, _ := colorful.MakeColor(c.RGBA)
		w := c.Weight
		if w <= 0 {
			w = 1e-6
		}
		cands = append(cands, candidate{col: col.Clamped(), weight: w})
	}
	if len(cands) == 0 {
		for _, col := range pixelKMeansColors(img, k) {
			cands = append(cands, candidate{col: col, weight: 1})
		}
	}
	if len(cands) == 0 {
		return nil
	}
	if k > len(cands) {
		k = len(cands)
	}

	seed := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].weight > cands[seed].weight {
			seed = i
		}
	}
	picked := []int{seed}
	taken := make([]bool, len(cands))
	taken[seed] = true
	for len(picked) < k {
		best := -1
		bestD := -1.0
		for i, c := range cands {
			if taken[i] {
				continue
			}
			minD := math.MaxFloat64
			for _, p := range picked {
				if d := c.col.DistanceLab(cands[p].col); d < minD {
					minD = d
				}
			}
			if minD > bestD {
				bestD = minD
				best = i
			}
		}
		if best < 0 {
			break
		}
		taken[best] = true
		picked = append(picked, best)
	}

	out := make([]colorful.Color, 0, len(picked))
	for _, i := range picked {
		out = append(out, cands[i].col)
	}
	return out
}

// pixelKMeansColors clusters subsampled opaque pixels into k RGB centers.
func pixelKMeansColors(img image.Image, k int) []colorful.Color {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || k <= 0 {
		return nil
	}

	// Subsample to keep k-means tractable on large images.
	maxSamples := 8000
	step := 1
	if w*h > maxSamples {
		step = int(math.Sqrt(float64(w*h)/float64(maxSamples))) + 1
	}
	dataset := make(clusters.Observations, 0, min(w*h, maxSamples))
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r16, g16, b16, a16 := img.At(x, y).RGBA()
			if a16 == 0 {
				continue
			}
			dataset = append(dataset, clusters.Coordinates{
				float64(r16) / 65535.0,
				float64(g16) / 65535.0,
				float64(b16) / 65535.0,
			})
		}
	}
	if len(dataset) < k {
		return nil
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil {
		return nil
	}
	out := make([]colorful.Color, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 {
			continue
		}
		out = append(out, colorful.Color{R: c.Center[0], G: c.Center[1], B: c.Center[2]}.Clamped())
	}
	return out
}

// SaveImage writes img to filename as PNG.
func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
