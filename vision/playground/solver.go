package playground

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/noegame/ROD/rimage/transform"
	"github.com/noegame/ROD/vision/fiducial"
)

// ApparentSizeSolver estimates a marker's position from its undistorted size in the image: the
// depth is f * size / side, the lateral offset follows the pinhole model. It assumes the marker
// faces the camera.
type ApparentSizeSolver struct {
	Camera *transform.PinholeCameraModel
}

// SolveMarker implements PoseSolver.
func (s *ApparentSizeSolver) SolveMarker(ctx context.Context, det fiducial.Detection, sizeMM float64) (r3.Vector, error) {
	if s.Camera == nil || s.Camera.PinholeCameraIntrinsics == nil {
		return r3.Vector{}, transform.NewNoIntrinsicsError("apparent size solver")
	}
	if sizeMM <= 0 {
		return r3.Vector{}, errors.Errorf("unknown size for marker %d", det.ID)
	}
	var corners [4]r2.Point
	for i, c := range det.Corners {
		u, err := s.Camera.UndistortPoint(c)
		if err != nil {
			return r3.Vector{}, err
		}
		corners[i] = u
	}
	undistorted := fiducial.Detection{ID: det.ID, Corners: corners}
	side := undistorted.Perimeter() / 4
	if side < 1e-9 {
		return r3.Vector{}, transform.NewTransformFailureError("marker %d has no extent", det.ID)
	}

	in := s.Camera.PinholeCameraIntrinsics
	f := (in.Fx + in.Fy) / 2
	z := f * sizeMM / side
	n := in.PixelToNormalized(undistorted.Center())
	return r3.Vector{X: n.X * z, Y: n.Y * z, Z: z}, nil
}
