package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestScaleAndSharpen(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	test.That(t, Scale(img, 1) == image.Image(img), test.ShouldBeTrue)
	test.That(t, Scale(img, 0) == image.Image(img), test.ShouldBeTrue)
	test.That(t, Scale(img, 1.5).Bounds(), test.ShouldResemble, image.Rect(0, 0, 60, 45))
	test.That(t, Scale(img, 0.5).Bounds(), test.ShouldResemble, image.Rect(0, 0, 20, 15))

	test.That(t, Sharpen(img, 0) == image.Image(img), test.ShouldBeTrue)
	test.That(t, Sharpen(img, 1).Bounds(), test.ShouldResemble, img.Bounds())
}

func TestApplyMaskPreservesSource(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	test.That(t, ApplyMask(img, nil) == image.Image(img), test.ShouldBeTrue)

	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	mask.SetGray(1, 2, color.Gray{Y: 255})
	out := ApplyMask(img, mask)
	test.That(t, out.At(1, 2), test.ShouldResemble, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	test.That(t, out.At(0, 0), test.ShouldResemble, color.NRGBA{A: 255})
	// The source image is left untouched.
	test.That(t, img.At(0, 0), test.ShouldResemble, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
}
