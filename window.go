package bayessmooth

import "gonum.org/v1/gonum/mat"

// Window builders produce binary-support windows: weights multiply raw cell
// values before the logit transform, so any weight above 1 pushes mid-range
// values past the probScale pole. Callers wanting literal multipliers can
// build their own weight matrix and hand it to Smooth directly.

// oddSize clamps size to the nearest usable odd dimension.
func oddSize(size int) int {
	if size < 1 {
		size = 1
	}
	if size%2 == 0 {
		size++
	}
	return size
}

// UniformWindow returns a size×size window with every weight set to 1.
func UniformWindow(size int) *mat.Dense {
	size = oddSize(size)
	w := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			w.Set(i, j, 1)
		}
	}
	return w
}

// CrossWindow returns a size×size window weighting only the center row and
// center column.
func CrossWindow(size int) *mat.Dense {
	size = oddSize(size)
	c := size / 2
	w := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		w.Set(i, c, 1)
		w.Set(c, i, 1)
	}
	return w
}

// DiskWindow returns a size×size window weighting the taps inside the
// inscribed disk. At size 3 this degenerates to the cross shape.
func DiskWindow(size int) *mat.Dense {
	size = oddSize(size)
	c := size / 2
	w := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			di := i - c
			dj := j - c
			if di*di+dj*dj <= c*c {
				w.Set(i, j, 1)
			}
		}
	}
	return w
}
