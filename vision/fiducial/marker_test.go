package fiducial

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func square(id int, x, y, side float64) Detection {
	return Detection{
		ID: id,
		Corners: [4]r2.Point{
			{X: x, Y: y},
			{X: x + side, Y: y},
			{X: x + side, Y: y + side},
			{X: x, Y: y + side},
		},
		Confidence: 1,
	}
}

func rotate(d Detection, theta float64) Detection {
	s, c := math.Sincos(theta)
	for i, p := range d.Corners {
		d.Corners[i] = r2.Point{X: p.X*c - p.Y*s, Y: p.X*s + p.Y*c}
	}
	return d
}

func TestMarkerGeometry(t *testing.T) {
	d := square(20, 0, 0, 10)
	test.That(t, d.Center(), test.ShouldResemble, r2.Point{X: 5, Y: 5})
	test.That(t, d.Angle(), test.ShouldEqual, 0.0)
	test.That(t, d.Area(), test.ShouldEqual, 100.0)
	test.That(t, d.Perimeter(), test.ShouldEqual, 40.0)

	r := rotate(d, math.Pi/2)
	test.That(t, r.Angle(), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, r.Area(), test.ShouldAlmostEqual, 100.0)
	c := r.Center()
	test.That(t, c.X, test.ShouldAlmostEqual, -5.0)
	test.That(t, c.Y, test.ShouldAlmostEqual, 5.0)

	test.That(t, rotate(d, 3*math.Pi/2).Angle(), test.ShouldAlmostEqual, -math.Pi/2)

	scaled := d.Scale(0.5)
	test.That(t, scaled.Center(), test.ShouldResemble, r2.Point{X: 2.5, Y: 2.5})
	test.That(t, d.Center(), test.ShouldResemble, r2.Point{X: 5, Y: 5})
}

func TestMarkerIDs(t *testing.T) {
	for _, id := range []int{1, 5, 6, 10, 20, 23, 36, 41, 47} {
		test.That(t, IsValidID(id), test.ShouldBeTrue)
	}
	for _, id := range []int{0, 11, 19, 24, 35, 42, 50, -1} {
		test.That(t, IsValidID(id), test.ShouldBeFalse)
	}
	test.That(t, CategoryOf(3), test.ShouldEqual, CategoryRobotBlue)
	test.That(t, CategoryOf(7), test.ShouldEqual, CategoryRobotYellow)
	test.That(t, CategoryOf(41).String(), test.ShouldEqual, "box_empty")
	test.That(t, SizeMM(21), test.ShouldEqual, FixedMarkerSizeMM)
	test.That(t, SizeMM(9), test.ShouldEqual, RobotMarkerSizeMM)
	test.That(t, SizeMM(47), test.ShouldEqual, GameElementMarkerSizeMM)
	test.That(t, SizeMM(99), test.ShouldEqual, 0.0)
}

func TestFilterAndCount(t *testing.T) {
	dets := []Detection{
		square(20, 0, 0, 10), square(21, 0, 0, 10), square(3, 0, 0, 10),
		square(8, 0, 0, 10), square(36, 0, 0, 10), square(36, 0, 0, 10),
		square(99, 0, 0, 10),
	}
	valid := FilterValid(dets)
	test.That(t, valid, test.ShouldHaveLength, 6)

	counts := Count(dets)
	test.That(t, counts, test.ShouldResemble, Counts{
		RobotBlue: 1, RobotYellow: 1, Fixed: 2, BoxBlue: 2, Total: 7,
	})
}

func TestBestByID(t *testing.T) {
	a := square(20, 0, 0, 10)
	a.Confidence = 0.4
	b := square(20, 5, 5, 10)
	b.Confidence = 0.9
	c := square(21, 0, 0, 10)
	best := BestByID([]Detection{a, c, b})
	test.That(t, best, test.ShouldHaveLength, 2)
	test.That(t, best[0], test.ShouldResemble, b)
	test.That(t, best[1], test.ShouldResemble, c)
}

func TestDetectorParams(t *testing.T) {
	p := DefaultDetectorParams()
	test.That(t, p.Validate(), test.ShouldBeNil)
	p.Dictionary = "5x5_100"
	test.That(t, p.Validate(), test.ShouldNotBeNil)
	p = DefaultDetectorParams()
	p.AdaptiveThreshWinSizeMax = 2
	test.That(t, p.Validate(), test.ShouldNotBeNil)
}

func TestPreprocessingDetector(t *testing.T) {
	var seen image.Rectangle
	inner := DetectorFunc(func(ctx context.Context, img image.Image) ([]Detection, error) {
		seen = img.Bounds()
		return []Detection{square(22, 30, 15, 15)}, nil
	})
	p := NewPreprocessingDetector(inner, PreprocessOptions{ScaleFactor: 1.5, ApplyMask: true})
	p.SetMask(image.NewGray(image.Rect(0, 0, 5, 5)))

	dets, err := p.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 40, 20)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seen, test.ShouldResemble, image.Rect(0, 0, 60, 30))
	test.That(t, dets, test.ShouldHaveLength, 1)
	test.That(t, dets[0].Corners[0].X, test.ShouldAlmostEqual, 20.0)
	test.That(t, dets[0].Corners[2].Y, test.ShouldAlmostEqual, 20.0)
	test.That(t, p.Close(), test.ShouldBeNil)
}

func TestStaticDetector(t *testing.T) {
	s := StaticDetector{square(20, 0, 0, 10)}
	dets, err := s.Detect(context.Background(), nil)
	test.That(t, err, test.ShouldBeNil)
	dets[0].ID = 1
	test.That(t, s[0].ID, test.ShouldEqual, 20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Detect(ctx, nil)
	test.That(t, err, test.ShouldEqual, context.Canceled)
}
