package rimage

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Sharpen applies an unsharp mask with the given gaussian sigma. A non-positive sigma returns
// the image unchanged.
func Sharpen(img image.Image, sigma float64) image.Image {
	if sigma <= 0 {
		return img
	}
	return imaging.Sharpen(img, sigma)
}

// Scale resizes the image by a uniform factor with linear filtering.
func Scale(img image.Image, factor float64) image.Image {
	if factor == 1 || factor <= 0 {
		return img
	}
	b := img.Bounds()
	w := int(float64(b.Dx())*factor + 0.5)
	h := int(float64(b.Dy())*factor + 0.5)
	return imaging.Resize(img, w, h, imaging.Linear)
}

// ApplyMask blacks out every pixel whose mask value is zero. Mask and image must share bounds;
// pixels outside the mask are treated as masked.
func ApplyMask(img image.Image, mask *image.Gray) image.Image {
	if mask == nil {
		return img
	}
	out := imaging.Clone(img)
	b := out.Bounds()
	black := color.NRGBA{A: 0xff}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := image.Point{x, y}
			if !p.In(mask.Rect) || mask.GrayAt(x, y).Y == 0 {
				out.SetNRGBA(x, y, black)
			}
		}
	}
	return out
}
