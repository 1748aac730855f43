package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
)

// PolygonMask rasterizes a filled polygon into a binary mask of the given size. Inside pixels
// are 255, outside pixels 0.
func PolygonMask(width, height int, poly []r2.Point) *image.Gray {
	dc := gg.NewContext(width, height)
	dc.SetColor(color.Black)
	dc.Clear()
	if len(poly) >= 3 {
		dc.SetColor(color.White)
		dc.MoveTo(poly[0].X, poly[0].Y)
		for _, p := range poly[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.ClosePath()
		dc.Fill()
	}

	src := dc.Image()
	mask := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if color.GrayModel.Convert(src.At(x, y)).(color.Gray).Y >= 128 {
				mask.Pix[y*mask.Stride+x] = 0xff
			}
		}
	}
	return mask
}
