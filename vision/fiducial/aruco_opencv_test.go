//go:build opencv

package fiducial

import (
	"context"
	"image"
	"testing"

	"go.viam.com/test"
)

func TestArucoDetectorLifecycle(t *testing.T) {
	test.That(t, arucoDictionary(), test.ShouldResemble, arucoDictionary())

	first, err := NewDetector(DefaultDetectorParams())
	test.That(t, err, test.ShouldBeNil)
	second, err := NewDetector(DefaultDetectorParams())
	test.That(t, err, test.ShouldBeNil)

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	dets, err := first.Detect(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldBeEmpty)

	test.That(t, first.Close(), test.ShouldBeNil)
	test.That(t, first.Close(), test.ShouldBeNil)
	_, err = first.Detect(context.Background(), img)
	test.That(t, err, test.ShouldNotBeNil)

	// closing one detector leaves the shared dictionary usable
	dets, err = second.Detect(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldBeEmpty)
	test.That(t, second.Close(), test.ShouldBeNil)
}
