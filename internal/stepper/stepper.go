// Package stepper maps scroll positions to progress along a scroll-linked
// navigation track and back. All layout measurements are passed in by the
// caller; nothing here reads or changes page state.
package stepper

import "fmt"

// Point is a waypoint on the track, anchored at a vertical document offset.
// Points are expected in document order with non-decreasing offsets.
type Point struct {
	OffsetY float64 `json:"offset_y"`
}

// InvalidInputError reports measurements that cannot describe a track.
type InvalidInputError struct {
	Op     string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("stepper %s: %s", e.Op, e.Reason)
}

func requireSegments(op string, points []Point) error {
	if len(points) < 2 {
		return &InvalidInputError{Op: op, Reason: fmt.Sprintf("need at least 2 points, got %d", len(points))}
	}
	return nil
}

// segmentShare is the percentage of the track covered by one segment.
func segmentShare(points []Point) float64 {
	return 100 / float64(len(points)-1)
}

// TrackPosition is the position the track follows: the middle of the viewport.
func TrackPosition(scrollY, viewportHeight float64) float64 {
	return scrollY + viewportHeight/2
}
