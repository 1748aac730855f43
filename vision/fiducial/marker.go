// Package fiducial describes square fiducial marker detections and the marker ids in play.
package fiducial

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"

	"github.com/noegame/ROD/utils"
)

// Detection is one marker found in an image. Corners are in pixels, in the detector's order
// (top-left, top-right, bottom-right, bottom-left of the marker).
type Detection struct {
	ID         int         `json:"id"`
	Corners    [4]r2.Point `json:"corners"`
	Confidence float64     `json:"confidence"`
}

// Center returns the mean of the corners.
func (d Detection) Center() r2.Point {
	var c r2.Point
	for _, p := range d.Corners {
		c = c.Add(p)
	}
	return c.Mul(0.25)
}

// Angle returns the direction of the first edge (corner 0 to corner 1), in [-π, π].
func (d Detection) Angle() float64 {
	e := d.Corners[1].Sub(d.Corners[0])
	return utils.NormalizeAngle(math.Atan2(e.Y, e.X))
}

// Perimeter returns the length of the corner polygon.
func (d Detection) Perimeter() float64 {
	var sum float64
	for i := range d.Corners {
		sum += d.Corners[(i+1)%4].Sub(d.Corners[i]).Norm()
	}
	return sum
}

// Area returns the area of the corner polygon using the shoelace formula.
func (d Detection) Area() float64 {
	var sum float64
	for i := range d.Corners {
		sum += d.Corners[i].Cross(d.Corners[(i+1)%4])
	}
	return math.Abs(sum) / 2
}

// Scale multiplies every corner by s.
func (d Detection) Scale(s float64) Detection {
	for i := range d.Corners {
		d.Corners[i] = d.Corners[i].Mul(s)
	}
	return d
}

func (d Detection) String() string {
	c := d.Center()
	return fmt.Sprintf("marker %d at (%.1f, %.1f)", d.ID, c.X, c.Y)
}

// Category groups marker ids by what they are attached to.
type Category int

// Marker categories of the 2026 game.
const (
	CategoryInvalid Category = iota
	CategoryRobotBlue
	CategoryRobotYellow
	CategoryFixed
	CategoryBoxBlue
	CategoryBoxEmpty
	CategoryBoxYellow
)

func (c Category) String() string {
	switch c {
	case CategoryRobotBlue:
		return "robot_blue"
	case CategoryRobotYellow:
		return "robot_yellow"
	case CategoryFixed:
		return "fixed"
	case CategoryBoxBlue:
		return "box_blue"
	case CategoryBoxEmpty:
		return "box_empty"
	case CategoryBoxYellow:
		return "box_yellow"
	case CategoryInvalid:
		fallthrough
	default:
		return "invalid"
	}
}

// Physical marker side lengths in mm.
const (
	FixedMarkerSizeMM       = 100.0
	RobotMarkerSizeMM       = 70.0
	GameElementMarkerSizeMM = 40.0
)

// Ids with a fixed meaning.
const (
	BoxBlueID   = 36
	BoxEmptyID  = 41
	BoxYellowID = 47
)

// CategoryOf returns the category of a marker id.
func CategoryOf(id int) Category {
	switch {
	case id >= 1 && id <= 5:
		return CategoryRobotBlue
	case id >= 6 && id <= 10:
		return CategoryRobotYellow
	case id >= 20 && id <= 23:
		return CategoryFixed
	case id == BoxBlueID:
		return CategoryBoxBlue
	case id == BoxEmptyID:
		return CategoryBoxEmpty
	case id == BoxYellowID:
		return CategoryBoxYellow
	default:
		return CategoryInvalid
	}
}

// IsValidID reports whether id is used on the playground.
func IsValidID(id int) bool {
	return CategoryOf(id) != CategoryInvalid
}

// SizeMM returns the printed side length of the marker with the given id, or 0 for unknown ids.
func SizeMM(id int) float64 {
	switch CategoryOf(id) {
	case CategoryFixed:
		return FixedMarkerSizeMM
	case CategoryRobotBlue, CategoryRobotYellow:
		return RobotMarkerSizeMM
	case CategoryBoxBlue, CategoryBoxEmpty, CategoryBoxYellow:
		return GameElementMarkerSizeMM
	case CategoryInvalid:
	}
	return 0
}

// FilterValid keeps the detections whose id is in play.
func FilterValid(dets []Detection) []Detection {
	return lo.Filter(dets, func(d Detection, _ int) bool { return IsValidID(d.ID) })
}

// Counts tallies detections per category.
type Counts struct {
	RobotBlue   int `json:"robot_blue"`
	RobotYellow int `json:"robot_yellow"`
	Fixed       int `json:"fixed"`
	BoxBlue     int `json:"box_blue"`
	BoxEmpty    int `json:"box_empty"`
	BoxYellow   int `json:"box_yellow"`
	Total       int `json:"total"`
}

// Count tallies dets by category. Total includes detections with unknown ids.
func Count(dets []Detection) Counts {
	byCat := lo.CountValuesBy(dets, func(d Detection) Category { return CategoryOf(d.ID) })
	return Counts{
		RobotBlue:   byCat[CategoryRobotBlue],
		RobotYellow: byCat[CategoryRobotYellow],
		Fixed:       byCat[CategoryFixed],
		BoxBlue:     byCat[CategoryBoxBlue],
		BoxEmpty:    byCat[CategoryBoxEmpty],
		BoxYellow:   byCat[CategoryBoxYellow],
		Total:       len(dets),
	}
}

// BestByID keeps, for every id, the detection with the highest confidence. The result is in order
// of first appearance.
func BestByID(dets []Detection) []Detection {
	best := map[int]int{}
	var out []Detection
	for _, d := range dets {
		i, ok := best[d.ID]
		if !ok {
			best[d.ID] = len(out)
			out = append(out, d)
			continue
		}
		if d.Confidence > out[i].Confidence {
			out[i] = d
		}
	}
	return out
}
