package rimage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"github.com/pkg/errors"
)

// PixelFormat identifies the memory layout of a captured frame.
type PixelFormat string

// The pixel formats a capture device can negotiate.
const (
	PixelFormatBGR888 = PixelFormat("BGR888")
	PixelFormatYUYV   = PixelFormat("YUYV")
	PixelFormatMJPEG  = PixelFormat("MJPEG")
)

// BytesPerPixel returns the packed size of one pixel, or 0 for compressed formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatBGR888:
		return 3
	case PixelFormatYUYV:
		return 2
	case PixelFormatMJPEG:
		return 0
	default:
		return 0
	}
}

// Compressed reports whether frames of this format have a variable size.
func (f PixelFormat) Compressed() bool {
	return f == PixelFormatMJPEG
}

// MinStride returns the smallest valid row stride for the given width.
func (f PixelFormat) MinStride(width int) int {
	return width * f.BytesPerPixel()
}

// Frame is a captured image whose bytes are owned by the frame, never by capture hardware.
type Frame struct {
	Width     int
	Height    int
	Stride    int
	Format    PixelFormat
	Bytes     []byte
	Seq       uint64
	Timestamp time.Time
}

// Size returns the number of valid bytes in the frame.
func (f *Frame) Size() int {
	return len(f.Bytes)
}

// Image decodes the frame into a standard image.
func (f *Frame) Image() (image.Image, error) {
	switch f.Format {
	case PixelFormatBGR888:
		return f.decodeBGR()
	case PixelFormatYUYV:
		return f.decodeYUYV()
	case PixelFormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(f.Bytes))
		if err != nil {
			return nil, errors.Wrap(err, "cannot decode mjpeg frame")
		}
		return img, nil
	default:
		return nil, errors.Errorf("unsupported pixel format %q", f.Format)
	}
}

func (f *Frame) checkLayout() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if f.Stride < f.Format.MinStride(f.Width) {
		return errors.Errorf("stride %d too small for width %d in %s", f.Stride, f.Width, f.Format)
	}
	need := f.Stride*(f.Height-1) + f.Format.MinStride(f.Width)
	if len(f.Bytes) < need {
		return errors.Errorf("frame holds %d bytes, %s %dx%d needs %d", len(f.Bytes), f.Format, f.Width, f.Height, need)
	}
	return nil
}

func (f *Frame) decodeBGR() (image.Image, error) {
	if err := f.checkLayout(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		row := f.Bytes[y*f.Stride:]
		out := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			out[x*4] = row[x*3+2]
			out[x*4+1] = row[x*3+1]
			out[x*4+2] = row[x*3]
			out[x*4+3] = 0xff
		}
	}
	return img, nil
}

func (f *Frame) decodeYUYV() (image.Image, error) {
	if err := f.checkLayout(); err != nil {
		return nil, err
	}
	if f.Width%2 != 0 {
		return nil, errors.Errorf("yuyv frame width must be even, got %d", f.Width)
	}
	yuyv := image.NewYCbCr(image.Rect(0, 0, f.Width, f.Height), image.YCbCrSubsampleRatio422)
	for y := 0; y < f.Height; y++ {
		row := f.Bytes[y*f.Stride:]
		for i := 0; i < f.Width/2; i++ {
			ii := i * 4
			yuyv.Y[y*yuyv.YStride+i*2] = row[ii]
			yuyv.Y[y*yuyv.YStride+i*2+1] = row[ii+2]
			yuyv.Cb[y*yuyv.CStride+i] = row[ii+1]
			yuyv.Cr[y*yuyv.CStride+i] = row[ii+3]
		}
	}
	return yuyv, nil
}

// FrameFromImage packs an image into a tightly strided BGR888 frame.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &Frame{Width: w, Height: h, Stride: w * 3, Format: PixelFormatBGR888, Bytes: make([]byte, w*h*3)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := y*out.Stride + x*3
			out.Bytes[i] = c.B
			out.Bytes[i+1] = c.G
			out.Bytes[i+2] = c.R
		}
	}
	return out
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame#%d %dx%d %s (%d bytes)", f.Seq, f.Width, f.Height, f.Format, f.Size())
}
