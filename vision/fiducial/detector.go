package fiducial

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// ErrDetectorUnavailable is returned when the binary was built without a marker detector.
var ErrDetectorUnavailable = errors.New("fiducial detector unavailable")

// A Detector finds markers in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
	Close() error
}

// DetectorParams tune the ArUco detector. The defaults were tuned on competition footage.
type DetectorParams struct {
	Dictionary                            string  `json:"dictionary"`
	AdaptiveThreshWinSizeMin              int     `json:"adaptive_thresh_win_size_min"`
	AdaptiveThreshWinSizeMax              int     `json:"adaptive_thresh_win_size_max"`
	AdaptiveThreshWinSizeStep             int     `json:"adaptive_thresh_win_size_step"`
	MinMarkerPerimeterRate                float64 `json:"min_marker_perimeter_rate"`
	MaxMarkerPerimeterRate                float64 `json:"max_marker_perimeter_rate"`
	PolygonalApproxAccuracyRate           float64 `json:"polygonal_approx_accuracy_rate"`
	CornerRefinementWinSize               int     `json:"corner_refinement_win_size"`
	CornerRefinementMaxIterations         int     `json:"corner_refinement_max_iterations"`
	MinDistanceToBorder                   int     `json:"min_distance_to_border"`
	MinOtsuStdDev                         float64 `json:"min_otsu_std_dev"`
	PerspectiveRemoveIgnoredMarginPerCell float64 `json:"perspective_remove_ignored_margin_per_cell"`
}

// Dictionary4x4 names the 4x4 ArUco dictionary of 50 markers the game uses.
const Dictionary4x4 = "4x4_50"

// DefaultDetectorParams returns the competition tuning.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		Dictionary:                            Dictionary4x4,
		AdaptiveThreshWinSizeMin:              3,
		AdaptiveThreshWinSizeMax:              53,
		AdaptiveThreshWinSizeStep:             4,
		MinMarkerPerimeterRate:                0.01,
		MaxMarkerPerimeterRate:                4.0,
		PolygonalApproxAccuracyRate:           0.05,
		CornerRefinementWinSize:               5,
		CornerRefinementMaxIterations:         50,
		MinDistanceToBorder:                   0,
		MinOtsuStdDev:                         2.0,
		PerspectiveRemoveIgnoredMarginPerCell: 0.15,
	}
}

// Validate checks the parameters are usable by the detector.
func (p DetectorParams) Validate() error {
	if p.Dictionary != Dictionary4x4 {
		return errors.Errorf("unsupported dictionary %q", p.Dictionary)
	}
	if p.AdaptiveThreshWinSizeMin < 3 || p.AdaptiveThreshWinSizeMax < p.AdaptiveThreshWinSizeMin {
		return errors.Errorf("bad adaptive threshold window [%d, %d]", p.AdaptiveThreshWinSizeMin, p.AdaptiveThreshWinSizeMax)
	}
	if p.AdaptiveThreshWinSizeStep <= 0 {
		return errors.New("adaptive_thresh_win_size_step must be positive")
	}
	if p.MinMarkerPerimeterRate <= 0 || p.MaxMarkerPerimeterRate < p.MinMarkerPerimeterRate {
		return errors.Errorf("bad marker perimeter rate [%v, %v]", p.MinMarkerPerimeterRate, p.MaxMarkerPerimeterRate)
	}
	return nil
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}

// Close does nothing.
func (f DetectorFunc) Close() error {
	return nil
}

// StaticDetector always reports the same detections. Useful for dry runs against the fake camera.
type StaticDetector []Detection

// Detect returns a copy of the detections.
func (s StaticDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Detection, len(s))
	copy(out, s)
	return out, nil
}

// Close does nothing.
func (s StaticDetector) Close() error {
	return nil
}
