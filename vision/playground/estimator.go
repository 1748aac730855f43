// Package playground aligns camera-frame marker positions with the playground frame.
package playground

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/noegame/ROD/rimage/transform"
	"github.com/noegame/ROD/vision/fiducial"
	"github.com/noegame/ROD/vision/field"
)

// ErrInsufficientReferences is returned below MinReferences correspondences.
var ErrInsufficientReferences = field.ErrInsufficientReferences

// MinReferences is the fewest correspondences an estimate is made from.
const MinReferences = 4

// Mode selects how the rotation between the frames is obtained.
type Mode string

const (
	// ModeRigid recovers the optimal rotation from the correspondences.
	ModeRigid = Mode("rigid")
	// ModeBoresight assumes the camera axes are aligned with the playground and only solves the
	// translation. Valid only when the camera looks straight down the playground's z axis.
	ModeBoresight = Mode("boresight")
)

// Valid reports whether the mode is known.
func (m Mode) Valid() bool {
	return m == ModeRigid || m == ModeBoresight
}

// Correspondence pairs a marker's camera-frame position with its known playground position, in mm.
type Correspondence struct {
	ID         int
	Camera     r3.Vector
	Playground r3.Vector
}

// Transform maps camera-frame points into the playground frame: p = R*c + T.
type Transform struct {
	Mode        Mode
	Rotation    *mat.Dense
	Translation r3.Vector
	// Residual is the RMS distance in mm between mapped and known reference positions.
	Residual float64
}

// Apply maps a camera-frame point.
func (t *Transform) Apply(c r3.Vector) r3.Vector {
	r := t.Rotation
	return r3.Vector{
		X: r.At(0, 0)*c.X + r.At(0, 1)*c.Y + r.At(0, 2)*c.Z + t.Translation.X,
		Y: r.At(1, 0)*c.X + r.At(1, 1)*c.Y + r.At(1, 2)*c.Z + t.Translation.Y,
		Z: r.At(2, 0)*c.X + r.At(2, 1)*c.Y + r.At(2, 2)*c.Z + t.Translation.Z,
	}
}

func (t *Transform) String() string {
	return fmt.Sprintf("%s transform: R=%v T=%v residual %.2fmm", t.Mode, mat.Formatted(t.Rotation, mat.Squeeze()), t.Translation, t.Residual)
}

// Estimator fits Transforms.
type Estimator struct {
	mode Mode
}

// NewEstimator returns an estimator for the given mode. An empty mode is rigid.
func NewEstimator(mode Mode) (*Estimator, error) {
	if mode == "" {
		mode = ModeRigid
	}
	if !mode.Valid() {
		return nil, errors.Errorf("unknown playground transform mode %q", mode)
	}
	return &Estimator{mode: mode}, nil
}

// Mode returns the estimator's mode.
func (e *Estimator) Mode() Mode {
	return e.mode
}

// Estimate fits the transform to the correspondences.
func (e *Estimator) Estimate(corrs []Correspondence) (*Transform, error) {
	if len(corrs) < MinReferences {
		return nil, errors.Wrapf(ErrInsufficientReferences, "playground transform needs %d references, got %d",
			MinReferences, len(corrs))
	}

	var cc, pc r3.Vector
	for _, c := range corrs {
		cc = cc.Add(c.Camera)
		pc = pc.Add(c.Playground)
	}
	n := float64(len(corrs))
	cc, pc = cc.Mul(1/n), pc.Mul(1/n)

	// Cross-covariance of the centered point sets.
	h := mat.NewDense(3, 3, nil)
	for _, c := range corrs {
		a := c.Camera.Sub(cc)
		b := c.Playground.Sub(pc)
		av := []float64{a.X, a.Y, a.Z}
		bv := []float64{b.X, b.Y, b.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				h.Set(i, j, h.At(i, j)+av[i]*bv[j])
			}
		}
	}

	var rot *mat.Dense
	switch e.mode {
	case ModeBoresight:
		rot = identity()
	case ModeRigid:
		var err error
		rot, err = kabschRotation(h)
		if err != nil {
			return nil, err
		}
	}

	t := &Transform{Mode: e.mode, Rotation: rot}
	t.Translation = pc.Sub(t.Apply(cc))

	dists := make(stats.Float64Data, len(corrs))
	for i, c := range corrs {
		dists[i] = t.Apply(c.Camera).Sub(c.Playground).Norm()
	}
	rms, err := stats.RootMeanSquare(dists)
	if err != nil {
		return nil, errors.Wrap(err, "cannot compute residual")
	}
	t.Residual = rms
	return t, nil
}

func identity() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// kabschRotation returns the proper rotation R minimizing Σ|R a - b|² given H = Σ a bᵀ.
func kabschRotation(h *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return nil, transform.NewTransformFailureError("playground svd did not converge")
	}
	values := svd.Values(nil)
	// Coplanar references give rank 2, which still fixes the rotation; collinear ones do not.
	if values[0] == 0 || values[1] < 1e-9*values[0] {
		return nil, transform.NewTransformFailureError("degenerate reference configuration, singular values %v", values)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	correction := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, d})
	var tmp, rot mat.Dense
	tmp.Mul(&v, correction)
	rot.Mul(&tmp, u.T())
	return &rot, nil
}

// A PoseSolver recovers one marker's center in the camera frame, in mm.
type PoseSolver interface {
	SolveMarker(ctx context.Context, det fiducial.Detection, sizeMM float64) (r3.Vector, error)
}

// Correspondences pairs the detected fixed markers with their playground positions using solver.
// Fixed markers lie on the playground plane (z = 0).
func Correspondences(
	ctx context.Context,
	solver PoseSolver,
	fixed []field.FixedMarker,
	dets []fiducial.Detection,
) ([]Correspondence, error) {
	best := fiducial.BestByID(dets)
	byID := make(map[int]fiducial.Detection, len(best))
	for _, d := range best {
		byID[d.ID] = d
	}
	var out []Correspondence
	for _, m := range fixed {
		d, ok := byID[m.ID]
		if !ok {
			continue
		}
		c, err := solver.SolveMarker(ctx, d, fiducial.SizeMM(m.ID))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot solve pose of fixed marker %d", m.ID)
		}
		out = append(out, Correspondence{ID: m.ID, Camera: c, Playground: r3.Vector{X: m.X, Y: m.Y}})
	}
	return out, nil
}

// EstimateFromDetections solves the fixed markers then fits the transform.
func (e *Estimator) EstimateFromDetections(
	ctx context.Context,
	solver PoseSolver,
	fixed []field.FixedMarker,
	dets []fiducial.Detection,
) (*Transform, error) {
	corrs, err := Correspondences(ctx, solver, fixed, dets)
	if err != nil {
		return nil, err
	}
	return e.Estimate(corrs)
}

// LocalizeMarkers places every valid detection on the playground through t, using the printed
// size of each marker category. Markers whose pose cannot be solved are returned degraded.
func LocalizeMarkers(
	ctx context.Context,
	solver PoseSolver,
	t *Transform,
	dets []fiducial.Detection,
) ([]field.WorldMarker, error) {
	valid := fiducial.FilterValid(dets)
	out := make([]field.WorldMarker, 0, len(valid))
	for _, d := range valid {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := field.WorldMarker{ID: d.ID, Pixel: d.Center(), Angle: d.Angle()}
		c, err := solver.SolveMarker(ctx, d, fiducial.SizeMM(d.ID))
		if err != nil || t == nil {
			m.World = m.Pixel
			m.Degraded = true
		} else {
			p := t.Apply(c)
			m.World.X, m.World.Y = p.X, p.Y
		}
		out = append(out, m)
	}
	return out, nil
}
