package utils

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRasterFromImage(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{R: 255}) // fully transparent
	img.SetNRGBA(1, 1, color.NRGBA{R: 128, G: 128, B: 128, A: 255})

	m := RasterFromImage(img)
	h, w := m.Dims()
	require.Equal(t, 2, h)
	require.Equal(t, 2, w)

	assert.InDelta(t, 10000, m.At(0, 0), 1e-6, "white maps to full scale")
	assert.InDelta(t, 0, m.At(0, 1), 1e-6, "black maps to zero")
	assert.True(t, math.IsNaN(m.At(1, 0)), "transparent maps to missing")
	assert.InDelta(t, 128.0/255.0*10000, m.At(1, 1), 1.0)
}

func TestReadRasterMissingFile(t *testing.T) {
	t.Parallel()

	_, err := ReadRaster(filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
}

func TestGrayImage(t *testing.T) {
	t.Parallel()

	m := mat.NewDense(1, 4, []float64{-4, 0, 4, math.NaN()})
	img := GrayImage(m, -4, 4)

	assert.Equal(t, uint8(0), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(127), img.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(2, 0).Y)
	assert.Equal(t, uint8(0), img.GrayAt(3, 0).Y, "missing renders black")
}

func TestHeatImage(t *testing.T) {
	t.Parallel()

	m := mat.NewDense(1, 3, []float64{-4, 4, math.NaN()})
	cold := colorful.Color{R: 0, G: 0, B: 1}
	warm := colorful.Color{R: 1, G: 0, B: 0}
	img := HeatImage(m, -4, 4, cold, warm)

	lo := img.NRGBAAt(0, 0)
	hi := img.NRGBAAt(1, 0)
	missing := img.NRGBAAt(2, 0)

	assert.Equal(t, uint8(255), lo.A)
	assert.Equal(t, uint8(255), hi.A)
	assert.Equal(t, uint8(0), missing.A, "missing renders transparent")
	assert.Greater(t, lo.B, lo.R, "low end leans cold")
	assert.Greater(t, hi.R, hi.B, "high end leans warm")
}

func TestClassifyValues(t *testing.T) {
	t.Parallel()

	t.Run("two well separated bands", func(t *testing.T) {
		t.Parallel()
		values := make([]float64, 0, 61)
		for i := 0; i < 30; i++ {
			values = append(values, 1+float64(i)*0.01)
		}
		values = append(values, math.NaN())
		for i := 0; i < 30; i++ {
			values = append(values, 10+float64(i)*0.01)
		}

		labels, err := ClassifyValues(values, 2)
		require.NoError(t, err)
		require.Len(t, labels, 61)
		for i := 0; i < 30; i++ {
			assert.Equal(t, 0, labels[i], "low band is class 0")
		}
		assert.Equal(t, -1, labels[30], "missing gets label -1")
		for i := 31; i < 61; i++ {
			assert.Equal(t, 1, labels[i], "high band is class 1")
		}
	})

	t.Run("too few finite values", func(t *testing.T) {
		t.Parallel()
		_, err := ClassifyValues([]float64{1, math.NaN()}, 2)
		require.Error(t, err)
	})

	t.Run("non-positive k", func(t *testing.T) {
		t.Parallel()
		_, err := ClassifyValues([]float64{1, 2, 3}, 0)
		require.Error(t, err)
	})
}

func TestClassifyRaster(t *testing.T) {
	t.Parallel()

	data := make([]float64, 36)
	for i := range data {
		if i%2 == 0 {
			data[i] = 1 + float64(i)*0.001
		} else {
			data[i] = 50 + float64(i)*0.001
		}
	}
	m := mat.NewDense(6, 6, data)

	labels, err := ClassifyRaster(m, 2)
	require.NoError(t, err)
	require.Len(t, labels, 36)
	for i, label := range labels {
		assert.Equal(t, i%2, label, "cell %d", i)
	}
}

func TestClassImage(t *testing.T) {
	t.Parallel()

	palette := []colorful.Color{
		{R: 1, G: 0, B: 0},
		{R: 0, G: 0, B: 1},
	}
	labels := []int{-1, 0, 1, 5}
	img := ClassImage(labels, 2, 2, palette)

	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A, "label -1 transparent")
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, img.NRGBAAt(0, 1))
	assert.Equal(t, uint8(0), img.NRGBAAt(1, 1).A, "label past palette transparent")
}

func TestClassPalette(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			if x < 20 {
				img.SetRGBA(x, y, color.RGBA{R: 220, G: 30, B: 30, A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{R: 30, G: 30, B: 220, A: 255})
			}
		}
	}

	palette := ClassPalette(img, 2)
	require.Len(t, palette, 2)
	assert.Greater(t, palette[0].DistanceLab(palette[1]), 0.1, "classes get distinct colors")

	assert.Nil(t, ClassPalette(img, 0))
}

func TestSaveImage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.png")
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	require.NoError(t, SaveImage(img, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
