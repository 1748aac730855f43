//go:build opencv

package fiducial

import (
	"context"
	"image"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const cornerRefineSubpix = 1

// gocv exposes no destructor for dictionaries or detector parameters. Every detector shares one
// dictionary; the parameters of each NewDetector call live until process exit.
var arucoDictionary = sync.OnceValue(func() gocv.ArucoDictionary {
	return gocv.GetPredefinedDictionary(gocv.ArucoDict4x4_50)
})

type arucoDetector struct {
	mu       sync.Mutex
	detector gocv.ArucoDetector
	closed   bool
}

// NewDetector returns an OpenCV ArUco detector configured with params.
func NewDetector(params DetectorParams) (Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := gocv.NewArucoDetectorParameters()
	p.SetAdaptiveThreshWinSizeMin(params.AdaptiveThreshWinSizeMin)
	p.SetAdaptiveThreshWinSizeMax(params.AdaptiveThreshWinSizeMax)
	p.SetAdaptiveThreshWinSizeStep(params.AdaptiveThreshWinSizeStep)
	p.SetMinMarkerPerimeterRate(params.MinMarkerPerimeterRate)
	p.SetMaxMarkerPerimeterRate(params.MaxMarkerPerimeterRate)
	p.SetPolygonalApproxAccuracyRate(params.PolygonalApproxAccuracyRate)
	p.SetCornerRefinementMethod(cornerRefineSubpix)
	p.SetCornerRefinementWinSize(params.CornerRefinementWinSize)
	p.SetCornerRefinementMaxIterations(params.CornerRefinementMaxIterations)
	p.SetMinDistanceToBorder(params.MinDistanceToBorder)
	p.SetMinOtsuStdDev(params.MinOtsuStdDev)
	p.SetPerspectiveRemoveIgnoredMarginPerCell(params.PerspectiveRemoveIgnoredMarginPerCell)

	return &arucoDetector{detector: gocv.NewArucoDetectorWithParams(arucoDictionary(), p)}, nil
}

func (a *arucoDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrap(err, "cannot convert image for detection")
	}
	defer m.Close()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errors.New("detector is closed")
	}
	corners, ids, _ := a.detector.DetectMarkers(m)
	a.mu.Unlock()

	dets := make([]Detection, 0, len(ids))
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}
		d := Detection{ID: id, Confidence: 1}
		for j, c := range corners[i] {
			d.Corners[j] = r2.Point{X: float64(c.X), Y: float64(c.Y)}
		}
		dets = append(dets, d)
	}
	return dets, nil
}

func (a *arucoDetector) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.detector.Close()
}
