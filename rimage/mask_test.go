package rimage

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestPolygonMask(t *testing.T) {
	mask := PolygonMask(100, 80, []r2.Point{{20, 20}, {80, 20}, {80, 60}, {20, 60}})
	test.That(t, mask.Bounds(), test.ShouldResemble, image.Rect(0, 0, 100, 80))
	test.That(t, mask.GrayAt(50, 40).Y, test.ShouldEqual, uint8(255))
	test.That(t, mask.GrayAt(5, 5).Y, test.ShouldEqual, uint8(0))
	test.That(t, mask.GrayAt(95, 75).Y, test.ShouldEqual, uint8(0))

	empty := PolygonMask(10, 10, nil)
	for _, p := range empty.Pix {
		test.That(t, p, test.ShouldEqual, uint8(0))
	}
}

func TestApplyMask(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	mask.SetGray(1, 1, color.Gray{255})

	out := ApplyMask(img, mask)
	test.That(t, color.NRGBAModel.Convert(out.At(1, 1)), test.ShouldResemble, color.NRGBA{200, 200, 200, 200})
	test.That(t, color.NRGBAModel.Convert(out.At(0, 0)), test.ShouldResemble, color.NRGBA{0, 0, 0, 255})
	test.That(t, ApplyMask(img, nil), test.ShouldEqual, img)
}

func TestScale(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 60))
	test.That(t, Scale(img, 1.5).Bounds(), test.ShouldResemble, image.Rect(0, 0, 150, 90))
	test.That(t, Scale(img, 1), test.ShouldEqual, img)
	test.That(t, Sharpen(img, 0), test.ShouldEqual, img)
	test.That(t, Sharpen(img, 1).Bounds(), test.ShouldResemble, img.Bounds())
}
