package fiducial

import (
	"context"
	"image"
	"sync"

	"github.com/noegame/ROD/rimage"
)

// PreprocessOptions are applied to every image before detection.
type PreprocessOptions struct {
	// SharpenSigma is the unsharp mask sigma; 0 disables sharpening.
	SharpenSigma float64 `json:"sharpen_sigma"`
	// ScaleFactor upsamples the image so small markers are found. Corners are mapped back to the
	// original image.
	ScaleFactor float64 `json:"scale_factor"`
	// ApplyMask blacks out everything off the playground once a mask is known.
	ApplyMask bool `json:"apply_mask"`
}

// DefaultPreprocessOptions returns the competition preprocessing.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{SharpenSigma: 1.0, ScaleFactor: 1.5, ApplyMask: true}
}

// PreprocessingDetector sharpens, masks and rescales images before handing them to another
// Detector.
type PreprocessingDetector struct {
	inner Detector
	opts  PreprocessOptions

	mu   sync.RWMutex
	mask *image.Gray
}

// NewPreprocessingDetector wraps inner.
func NewPreprocessingDetector(inner Detector, opts PreprocessOptions) *PreprocessingDetector {
	return &PreprocessingDetector{inner: inner, opts: opts}
}

// SetMask sets the play-area mask. A nil mask disables masking.
func (p *PreprocessingDetector) SetMask(mask *image.Gray) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask = mask
}

// Mask returns the current mask.
func (p *PreprocessingDetector) Mask() *image.Gray {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mask
}

// Detect runs the preprocessing chain and the wrapped detector. A mask whose size does not match
// the image is ignored.
func (p *PreprocessingDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	img = rimage.Sharpen(img, p.opts.SharpenSigma)
	if mask := p.Mask(); p.opts.ApplyMask && mask != nil && mask.Rect.Size() == img.Bounds().Size() {
		img = rimage.ApplyMask(img, mask)
	}
	scale := p.opts.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	img = rimage.Scale(img, scale)

	dets, err := p.inner.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	if scale != 1 {
		for i := range dets {
			dets[i] = dets[i].Scale(1 / scale)
		}
	}
	return dets, nil
}

// Close closes the wrapped detector.
func (p *PreprocessingDetector) Close() error {
	return p.inner.Close()
}
