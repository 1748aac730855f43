package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// NoDistortionType is an ideal pinhole lens.
	NoDistortionType = DistortionType("no_distortion")
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// KannalaBrandtDistortionType is for wide-angle and fisheye lense distortion.
	KannalaBrandtDistortionType = DistortionType("kannala_brandt")
)

// Distorter models a lens in normalized image coordinates (x = (u - ppx) / fx).
// Transform distorts an ideal point; Undistort inverts it.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
	Undistort(xd, yd float64) (float64, float64, error)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrapf(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	case KannalaBrandtDistortionType:
		return NewKannalaBrandt(parameters)
	case NoDistortionType, "":
		if len(parameters) != 0 {
			return nil, InvalidDistortionError("no_distortion takes no parameters")
		}
		return noDistortion{}, nil
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

type noDistortion struct{}

func (noDistortion) ModelType() DistortionType                 { return NoDistortionType }
func (noDistortion) CheckValid() error                         { return nil }
func (noDistortion) Parameters() []float64                     { return []float64{} }
func (noDistortion) Transform(x, y float64) (float64, float64) { return x, y }

func (noDistortion) Undistort(xd, yd float64) (float64, float64, error) {
	return xd, yd, nil
}
