package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// homogeneousEpsilon bounds the homogeneous coordinate below which a projected point is
// considered at infinity.
const homogeneousEpsilon = 1e-12

// Homography is a 3x3 matrix (represented as a 2D array) used to map points between two planes.
// Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a homography from a slice of 9 values in row-major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	var h Homography
	for i, v := range vals {
		h[i/3][i%3] = v
	}
	return &h, nil
}

func homographyFromDense(m mat.Matrix) (*Homography, error) {
	if !allFinite(m) {
		return nil, NewTransformFailureError("homography has non-finite entries")
	}
	scale := m.At(2, 2)
	if math.Abs(scale) < homogeneousEpsilon {
		return nil, NewTransformFailureError("homography has a vanishing h33")
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = m.At(i, j) / scale
		}
	}
	return &h, nil
}

// At returns the value at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Dense returns the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, h[i][j])
		}
	}
	return m
}

// Apply maps a point through the homography. It fails when the point maps to infinity.
func (h *Homography) Apply(pt r2.Point) (r2.Point, error) {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	if math.Abs(z) < homogeneousEpsilon {
		return r2.Point{}, NewTransformFailureError("point (%.3f, %.3f) maps to infinity", pt.X, pt.Y)
	}
	out := r2.Point{X: x / z, Y: y / z}
	if math.IsNaN(out.X) || math.IsNaN(out.Y) || math.IsInf(out.X, 0) || math.IsInf(out.Y, 0) {
		return r2.Point{}, NewTransformFailureError("point (%.3f, %.3f) maps to a non-finite value", pt.X, pt.Y)
	}
	return out, nil
}

// Inverse returns the inverse homography, normalized so that h33 = 1.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		return nil, errors.Wrap(ErrTransformFailure, err.Error())
	}
	return homographyFromDense(&inv)
}

func (h *Homography) String() string {
	return fmt.Sprintf("[%.6g %.6g %.6g; %.6g %.6g %.6g; %.6g %.6g %.6g]",
		h[0][0], h[0][1], h[0][2], h[1][0], h[1][1], h[1][2], h[2][0], h[2][1], h[2][2])
}

// EstimateHomography solves the homography mapping src onto dst with the normalized direct
// linear transform. At least four correspondences are required, no three of them collinear.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("mismatched point counts: %d source, %d destination", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 correspondences to estimate a homography, got %d", len(src))
	}

	srcN, t1 := normalizePoints(src)
	dstN, t2 := normalizePoints(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	res := performSVD(a)
	if res == nil {
		return nil, NewTransformFailureError("svd did not converge")
	}
	// The solution is rank-deficient if the second smallest singular value is also ~0.
	if len(res.Values) < 8 || res.Values[7] < 1e-10*res.Values[0] {
		return nil, NewTransformFailureError("degenerate point configuration")
	}

	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, res.V.At(i, 8))
	}

	// Denormalize: H = T2^-1 * Hn * T1.
	var t2Inv mat.Dense
	if err := t2Inv.Inverse(t2); err != nil {
		return nil, errors.Wrap(ErrTransformFailure, err.Error())
	}
	var tmp, full mat.Dense
	tmp.Mul(&t2Inv, hn)
	full.Mul(&tmp, t1)
	return homographyFromDense(&full)
}
