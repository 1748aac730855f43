//go:build !opencv

package fiducial

// NewDetector fails: the binary was built without the opencv tag.
func NewDetector(params DetectorParams) (Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return nil, ErrDetectorUnavailable
}
