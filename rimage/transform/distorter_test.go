package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestNewDistorter(t *testing.T) {
	d, err := NewDistorter(KannalaBrandtDistortionType, []float64{0.1, 0.2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, KannalaBrandtDistortionType)
	test.That(t, d.Parameters(), test.ShouldResemble, []float64{0.1, 0.2, 0, 0})

	_, err = NewDistorter(KannalaBrandtDistortionType, []float64{1, 2, 3, 4, 5})
	test.That(t, err, test.ShouldNotBeNil)

	d, err = NewDistorter(BrownConradyDistortionType, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Parameters(), test.ShouldHaveLength, 5)

	d, err = NewDistorter("", nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, NoDistortionType)

	_, err = NewDistorter("mystery", nil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "mystery")
}

func TestDistortionRoundTrip(t *testing.T) {
	models := []Distorter{
		&KannalaBrandt{K1: -0.1203345, K2: 0.06802544, K3: -0.13779641, K4: 0.08243704},
		&BrownConrady{RadialK1: -0.28, RadialK2: 0.07, TangentialP1: 0.001, TangentialP2: -0.0005},
	}
	points := [][2]float64{{0, 0}, {0.1, -0.05}, {-0.3, 0.25}, {0.45, 0.4}}
	for _, m := range models {
		for _, p := range points {
			xd, yd := m.Transform(p[0], p[1])
			xu, yu, err := m.Undistort(xd, yd)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, xu, test.ShouldAlmostEqual, p[0], 1e-8)
			test.That(t, yu, test.ShouldAlmostEqual, p[1], 1e-8)
		}
	}
}

func TestKannalaBrandtOutOfRange(t *testing.T) {
	// Strong negative k1 folds the model back before π/2.
	kb := &KannalaBrandt{K1: -2}
	_, _, err := kb.Undistort(5, 5)
	test.That(t, errors.Is(err, ErrTransformFailure), test.ShouldBeTrue)
}

func TestCameraModelUndistortPoint(t *testing.T) {
	cam := DefaultCompetitionCamera()
	test.That(t, cam.CheckValid(), test.ShouldBeNil)

	center := r2.Point{cam.Ppx, cam.Ppy}
	got, err := cam.UndistortPoint(center)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.X, test.ShouldAlmostEqual, center.X, 1e-9)
	test.That(t, got.Y, test.ShouldAlmostEqual, center.Y, 1e-9)

	for _, ideal := range []r2.Point{{1200, 900}, {2600, 3100}, {500, 3500}} {
		distorted := cam.DistortPoint(ideal)
		back, err := cam.UndistortPoint(distorted)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.X, test.ShouldAlmostEqual, ideal.X, 1e-5)
		test.That(t, back.Y, test.ShouldAlmostEqual, ideal.Y, 1e-5)
	}

	// Fisheye undistortion pushes off-axis points outward.
	off := r2.Point{cam.Ppx + 1000, cam.Ppy}
	und, err := cam.UndistortPoint(off)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, und.X, test.ShouldBeGreaterThan, off.X)

	plain := &PinholeCameraModel{PinholeCameraIntrinsics: cam.PinholeCameraIntrinsics}
	same, err := plain.UndistortPoint(off)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldResemble, off)
}

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	bad := &PinholeCameraIntrinsics{Width: 10, Height: 10, Fx: 0, Fy: 1}
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)

	m := DefaultCompetitionCamera().GetCameraMatrix()
	test.That(t, m.At(0, 0), test.ShouldAlmostEqual, 2493.62477)
	test.That(t, m.At(1, 2), test.ShouldAlmostEqual, 2034.91176)
}
