package perception

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/vision/field"
)

// MarkerRecord is what the detection consumer receives for every marker: ids, playground
// millimetres and the orientation in radians.
type MarkerRecord struct {
	ID    int     `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

func (r MarkerRecord) String() string {
	return fmt.Sprintf("[%d, %.1f, %.1f, %.3f]", r.ID, r.X, r.Y, r.Angle)
}

// RecordsFrom converts localized markers.
func RecordsFrom(markers []field.WorldMarker) []MarkerRecord {
	return lo.Map(markers, func(m field.WorldMarker, _ int) MarkerRecord {
		return MarkerRecord{ID: m.ID, X: m.World.X, Y: m.World.Y, Angle: m.Angle}
	})
}

// A Sink receives the markers of every processed frame.
type Sink interface {
	Publish(ctx context.Context, seq uint64, records []MarkerRecord) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, seq uint64, records []MarkerRecord) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, seq uint64, records []MarkerRecord) error {
	return f(ctx, seq, records)
}

// LogSink logs every frame's records.
type LogSink struct {
	Logger logging.Logger
}

// Publish logs the records as JSON.
func (s *LogSink) Publish(ctx context.Context, seq uint64, records []MarkerRecord) error {
	if records == nil {
		records = []MarkerRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	s.Logger.Infow("markers", "frame", seq, "count", len(records), "records", string(payload))
	return nil
}
