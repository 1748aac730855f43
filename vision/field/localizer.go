package field

import (
	"fmt"

	"github.com/golang/geo/r2"

	"github.com/noegame/ROD/vision/fiducial"
)

// WorldMarker is a detection placed on the field.
type WorldMarker struct {
	ID    int
	World r2.Point // mm
	Pixel r2.Point
	// Angle is the marker orientation in the image, in radians.
	Angle float64
	// Degraded is set when no world position could be computed and World holds pixels.
	Degraded bool
}

func (m WorldMarker) String() string {
	if m.Degraded {
		return fmt.Sprintf("marker %d at pixel (%.1f, %.1f)", m.ID, m.Pixel.X, m.Pixel.Y)
	}
	return fmt.Sprintf("marker %d at (%.1f, %.1f)mm", m.ID, m.World.X, m.World.Y)
}

// Localize places every detection with a valid id on the field. Without a registration, or when
// a center cannot be mapped, the marker is still returned with its pixel position copied into
// World and Degraded set.
func Localize(reg *Registration, dets []fiducial.Detection) []WorldMarker {
	valid := fiducial.FilterValid(dets)
	out := make([]WorldMarker, 0, len(valid))
	for _, d := range valid {
		m := WorldMarker{ID: d.ID, Pixel: d.Center(), Angle: d.Angle()}
		world, ok := toWorld(reg, m.Pixel)
		if ok {
			m.World = world
		} else {
			m.World = m.Pixel
			m.Degraded = true
		}
		out = append(out, m)
	}
	return out
}

// ToWorld maps one raw pixel to the field.
func (r *Registration) ToWorld(p r2.Point) (r2.Point, error) {
	u, err := undistort(r.Camera, p)
	if err != nil {
		return r2.Point{}, err
	}
	return r.Inverse.Apply(u)
}

func toWorld(reg *Registration, p r2.Point) (r2.Point, bool) {
	if reg == nil || reg.Inverse == nil {
		return r2.Point{}, false
	}
	w, err := reg.ToWorld(p)
	if err != nil {
		return r2.Point{}, false
	}
	return w, true
}
