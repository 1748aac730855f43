// Package field maps pixels onto the playing field using the four fixed reference markers.
package field

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage"
	"github.com/noegame/ROD/rimage/transform"
	"github.com/noegame/ROD/vision/fiducial"
)

// ErrInsufficientReferences is returned when fewer than the four fixed markers are visible.
var ErrInsufficientReferences = errors.New("insufficient fixed reference markers")

// FixedMarker is a reference marker at a known position on the field, in mm.
type FixedMarker struct {
	ID int     `json:"id"`
	X  float64 `json:"x_mm"`
	Y  float64 `json:"y_mm"`
}

// World returns the marker position.
func (m FixedMarker) World() r2.Point {
	return r2.Point{X: m.X, Y: m.Y}
}

// Config describes the field and the camera looking at it.
type Config struct {
	FixedMarkers []FixedMarker `json:"fixed_markers"`
	// WidthMM is the extent of the field along x, LengthMM along y.
	WidthMM  float64 `json:"width_mm"`
	LengthMM float64 `json:"length_mm"`
	// MaskScaleY stretches the play-area mask vertically about its centroid.
	MaskScaleY float64 `json:"mask_scale_y"`

	// Camera undistorts marker centers. A nil camera treats pixels as distortion free.
	Camera *transform.PinholeCameraModel `json:"-"`
}

// DefaultConfig returns the 2026 field seen by the competition camera.
func DefaultConfig() Config {
	return Config{
		FixedMarkers: []FixedMarker{
			{ID: 20, X: 600, Y: 600},
			{ID: 21, X: 600, Y: 2400},
			{ID: 22, X: 1400, Y: 600},
			{ID: 23, X: 1400, Y: 2400},
		},
		WidthMM:    2000,
		LengthMM:   3000,
		MaskScaleY: 1.1,
		Camera:     transform.DefaultCompetitionCamera(),
	}
}

// Validate ensures the field description is usable.
func (c Config) Validate() error {
	if len(c.FixedMarkers) != 4 {
		return errors.Errorf("need exactly 4 fixed markers, got %d", len(c.FixedMarkers))
	}
	ids := lo.Map(c.FixedMarkers, func(m FixedMarker, _ int) int { return m.ID })
	if len(lo.Uniq(ids)) != len(ids) {
		return errors.Errorf("fixed marker ids must be distinct, got %v", ids)
	}
	if c.WidthMM <= 0 || c.LengthMM <= 0 {
		return errors.Errorf("field dimensions must be positive, got %vx%v", c.WidthMM, c.LengthMM)
	}
	if c.MaskScaleY <= 0 {
		return errors.Errorf("mask_scale_y must be positive, got %v", c.MaskScaleY)
	}
	if c.Camera != nil {
		return c.Camera.CheckValid()
	}
	return nil
}

// Reference is one fixed marker correspondence used by a registration.
type Reference struct {
	ID          int
	World       r2.Point
	Pixel       r2.Point
	Undistorted r2.Point
	// Error is the distance in pixels between Undistorted and the projected world point.
	Error float64
}

// Registration maps the field plane to undistorted pixels, and back.
type Registration struct {
	// Homography maps world mm to undistorted pixels, Inverse the other way.
	Homography *transform.Homography
	Inverse    *transform.Homography
	Camera     *transform.PinholeCameraModel

	References []Reference
	// Playground is the field rectangle projected into the image, scaled and clamped.
	Playground [4]r2.Point
	Mask       *image.Gray

	MeanError float64
	MaxError  float64
	FrameSeq  uint64
	CreatedAt time.Time
}

func (r *Registration) String() string {
	return fmt.Sprintf("registration from frame %d (mean error %.3fpx, max %.3fpx)", r.FrameSeq, r.MeanError, r.MaxError)
}

// Register computes the field registration from detections made on frame. It fails with
// ErrInsufficientReferences unless every fixed marker was detected. When a fixed id is detected
// more than once the most confident detection wins.
func Register(cfg Config, frame *rimage.Frame, dets []fiducial.Detection) (*Registration, error) {
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return nil, errors.New("registration needs a frame with a size")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid field config")
	}

	byID := lo.KeyBy(fiducial.BestByID(dets), func(d fiducial.Detection) int { return d.ID })
	var missing []int
	refs := make([]Reference, 0, len(cfg.FixedMarkers))
	for _, m := range cfg.FixedMarkers {
		d, ok := byID[m.ID]
		if !ok {
			missing = append(missing, m.ID)
			continue
		}
		refs = append(refs, Reference{ID: m.ID, World: m.World(), Pixel: d.Center()})
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(ErrInsufficientReferences, "found %d/%d fixed markers, missing %v",
			len(refs), len(cfg.FixedMarkers), missing)
	}

	camera := cfg.Camera.ScaledTo(frame.Width, frame.Height)
	for i := range refs {
		u, err := undistort(camera, refs[i].Pixel)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot undistort fixed marker %d", refs[i].ID)
		}
		refs[i].Undistorted = u
	}

	world := lo.Map(refs, func(r Reference, _ int) r2.Point { return r.World })
	pixels := lo.Map(refs, func(r Reference, _ int) r2.Point { return r.Undistorted })
	h, err := transform.EstimateHomography(world, pixels)
	if err != nil {
		return nil, err
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, err
	}

	errs := make(stats.Float64Data, len(refs))
	for i := range refs {
		p, err := h.Apply(refs[i].World)
		if err != nil {
			return nil, err
		}
		refs[i].Error = p.Sub(refs[i].Undistorted).Norm()
		errs[i] = refs[i].Error
	}
	mean, err := errs.Mean()
	if err != nil {
		return nil, errors.Wrap(err, "cannot compute reprojection error")
	}
	maxErr, err := errs.Max()
	if err != nil {
		return nil, errors.Wrap(err, "cannot compute reprojection error")
	}

	quad, err := projectPlayground(h, cfg, frame.Width, frame.Height)
	if err != nil {
		return nil, err
	}

	return &Registration{
		Homography: h,
		Inverse:    inv,
		Camera:     camera,
		References: refs,
		Playground: quad,
		Mask:       rimage.PolygonMask(frame.Width, frame.Height, quad[:]),
		MeanError:  mean,
		MaxError:   maxErr,
		FrameSeq:   frame.Seq,
		CreatedAt:  frame.Timestamp,
	}, nil
}

// RegisterFrame runs detector on frame then registers it. The detections are returned even when
// registration fails so the caller can still localize them.
func RegisterFrame(
	ctx context.Context,
	cfg Config,
	frame *rimage.Frame,
	detector fiducial.Detector,
) (*Registration, []fiducial.Detection, error) {
	img, err := frame.Image()
	if err != nil {
		return nil, nil, err
	}
	dets, err := detector.Detect(ctx, img)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fiducial detection failed")
	}
	reg, err := Register(cfg, frame, dets)
	return reg, dets, err
}

func undistort(camera *transform.PinholeCameraModel, p r2.Point) (r2.Point, error) {
	if camera == nil {
		return p, nil
	}
	return camera.UndistortPoint(p)
}

// projectPlayground maps the field corners into the image, stretches the quad along y about its
// centroid and clamps it to the image.
func projectPlayground(h *transform.Homography, cfg Config, width, height int) ([4]r2.Point, error) {
	corners := [4]r2.Point{
		{X: 0, Y: 0},
		{X: cfg.WidthMM, Y: 0},
		{X: cfg.WidthMM, Y: cfg.LengthMM},
		{X: 0, Y: cfg.LengthMM},
	}
	var quad [4]r2.Point
	var cy float64
	for i, c := range corners {
		p, err := h.Apply(c)
		if err != nil {
			return quad, errors.Wrap(err, "cannot project playground corner")
		}
		quad[i] = p
		cy += p.Y / 4
	}
	maxX, maxY := float64(width-1), float64(height-1)
	for i := range quad {
		if cfg.MaskScaleY != 1 {
			quad[i].Y = cy + (quad[i].Y-cy)*cfg.MaskScaleY
		}
		quad[i].X = clamp(quad[i].X, 0, maxX)
		quad[i].Y = clamp(quad[i].Y, 0, maxY)
	}
	return quad, nil
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// Registrar holds the latest successful registration. A failed attempt leaves it untouched.
type Registrar struct {
	cfg    Config
	logger logging.Logger

	mu       sync.RWMutex
	current  *Registration
	attempts int
}

// NewRegistrar returns a Registrar with no registration.
func NewRegistrar(cfg Config, logger logging.Logger) *Registrar {
	return &Registrar{cfg: cfg, logger: logger}
}

// Config returns the field description.
func (r *Registrar) Config() Config {
	return r.cfg
}

// Attempt registers frame from its detections, replacing the current registration on success.
func (r *Registrar) Attempt(frame *rimage.Frame, dets []fiducial.Detection) (*Registration, error) {
	reg, err := Register(r.cfg, frame, dets)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if err != nil {
		r.logger.Debugw("field registration failed", "attempt", r.attempts, "error", err)
		return nil, err
	}
	r.current = reg
	r.logger.Infow("field registered",
		"attempt", r.attempts,
		"frame", reg.FrameSeq,
		"mean_error_px", reg.MeanError,
		"max_error_px", reg.MaxError,
	)
	return reg, nil
}

// Current returns the registration in use, or nil.
func (r *Registrar) Current() *Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Valid reports whether a registration is available.
func (r *Registrar) Valid() bool {
	return r.Current() != nil
}

// Reset forgets the current registration.
func (r *Registrar) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
	r.attempts = 0
}
