package transform

import (
	"math"

	"github.com/pkg/errors"
)

// KannalaBrandt is the equidistant fisheye model: a ray at angle θ from the optical axis lands at
// normalized radius θd = θ(1 + k1θ² + k2θ⁴ + k3θ⁶ + k4θ⁸).
type KannalaBrandt struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	K3 float64 `json:"k3"`
	K4 float64 `json:"k4"`
}

// NewKannalaBrandt takes up to four coefficients in order. Missing trailing values default to zero.
func NewKannalaBrandt(inp []float64) (*KannalaBrandt, error) {
	if len(inp) > 4 {
		return nil, errors.Errorf("list of parameters too long, expected max 4, got %d", len(inp))
	}
	vals := make([]float64, 4)
	copy(vals, inp)
	return &KannalaBrandt{vals[0], vals[1], vals[2], vals[3]}, nil
}

// CheckValid checks if the fields for KannalaBrandt have valid inputs.
func (kb *KannalaBrandt) CheckValid() error {
	if kb == nil {
		return InvalidDistortionError("KannalaBrandt shaped distortion_parameters not provided")
	}
	for _, k := range kb.Parameters() {
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return InvalidDistortionError("KannalaBrandt coefficients must be finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (kb *KannalaBrandt) ModelType() DistortionType {
	return KannalaBrandtDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (kb *KannalaBrandt) Parameters() []float64 {
	if kb == nil {
		return []float64{}
	}
	return []float64{kb.K1, kb.K2, kb.K3, kb.K4}
}

func (kb *KannalaBrandt) theta(t float64) float64 {
	t2 := t * t
	return t * (1 + t2*(kb.K1+t2*(kb.K2+t2*(kb.K3+t2*kb.K4))))
}

func (kb *KannalaBrandt) dTheta(t float64) float64 {
	t2 := t * t
	return 1 + t2*(3*kb.K1+t2*(5*kb.K2+t2*(7*kb.K3+t2*9*kb.K4)))
}

// Transform distorts an ideal normalized point.
func (kb *KannalaBrandt) Transform(x, y float64) (float64, float64) {
	if kb == nil {
		return x, y
	}
	r := math.Hypot(x, y)
	if r < 1e-12 {
		return x, y
	}
	scale := kb.theta(math.Atan(r)) / r
	return x * scale, y * scale
}

// Undistort recovers the ideal normalized point by Newton iteration on θ.
func (kb *KannalaBrandt) Undistort(xd, yd float64) (float64, float64, error) {
	if kb == nil {
		return xd, yd, nil
	}
	thetaD := math.Hypot(xd, yd)
	if thetaD < 1e-12 {
		return xd, yd, nil
	}
	thetaD = math.Min(thetaD, math.Pi/2)

	const maxIterations = 20
	const tolerance = 1e-10
	theta := thetaD
	converged := false
	for i := 0; i < maxIterations; i++ {
		f := kb.theta(theta) - thetaD
		if math.Abs(f) < tolerance {
			converged = true
			break
		}
		df := kb.dTheta(theta)
		if df == 0 {
			break
		}
		theta -= f / df
	}

	if !converged && math.Abs(kb.theta(theta)-thetaD) > 1e-6 {
		return 0, 0, NewTransformFailureError("fisheye undistortion did not converge for (%g, %g)", xd, yd)
	}
	// A sign flip or a ray behind the lens means the point is outside the model's valid field.
	if theta < 0 || theta >= math.Pi/2 || math.IsNaN(theta) {
		return 0, 0, NewTransformFailureError("fisheye undistortion out of range for (%g, %g)", xd, yd)
	}

	scale := math.Tan(theta) / thetaD
	return xd * scale, yd * scale, nil
}
