package stepper

import (
	"fmt"
	"math"
)

// ScrollInput carries the measurements needed to turn a dragged icon position
// back into a document scroll target.
type ScrollInput struct {
	Points []Point `json:"points"`
	// TrackWidth is the rendered width of the horizontal track in pixels.
	TrackWidth float64 `json:"track_width"`
	// IconOffset is the icon's horizontal offset along the track.
	IconOffset float64 `json:"icon_offset"`
	// BlockHeights has one entry per segment: the height of the document
	// region that segment stands for.
	BlockHeights []float64 `json:"block_heights"`
	// DrawingLineHeight is the height of the connector graphic at the top of
	// each block; it is subtracted from the target.
	DrawingLineHeight float64 `json:"drawing_line_height"`
}

type ScrollTarget struct {
	// Segment is the 1-based segment the icon falls into.
	Segment             int     `json:"segment"`
	ScrollTopY          float64 `json:"scroll_top_y"`
	IsActiveTerminalDot bool    `json:"is_active_terminal_dot"`
}

// ComputeScrollTarget maps an icon offset to the vertical scroll position of
// the matching point inside its block. The terminal dot is active once the
// icon is past three quarters of the last segment.
func ComputeScrollTarget(in ScrollInput) (ScrollTarget, error) {
	const op = "scroll target"
	if err := requireSegments(op, in.Points); err != nil {
		return ScrollTarget{}, err
	}
	if in.TrackWidth <= 0 {
		return ScrollTarget{}, &InvalidInputError{Op: op, Reason: fmt.Sprintf("track width must be positive, got %v", in.TrackWidth)}
	}

	segments := len(in.Points) - 1
	segmentWidth := in.TrackWidth / float64(segments)
	segment := int(math.Ceil(in.IconOffset / segmentWidth))
	if segment < 1 {
		segment = 1
	}
	if segment > segments {
		segment = segments
	}
	if len(in.BlockHeights) < segment {
		return ScrollTarget{}, &InvalidInputError{
			Op:     op,
			Reason: fmt.Sprintf("no block height for segment %d (have %d)", segment, len(in.BlockHeights)),
		}
	}

	offsetInBlock := in.IconOffset
	if segment > 1 {
		offsetInBlock = in.IconOffset - segmentWidth*float64(segment-1)
	}
	blockY := in.BlockHeights[segment-1] * (offsetInBlock / segmentWidth)

	return ScrollTarget{
		Segment:             segment,
		ScrollTopY:          in.Points[segment-1].OffsetY + blockY - in.DrawingLineHeight,
		IsActiveTerminalDot: offsetInBlock > segmentWidth/4*3 && segment == segments,
	}, nil
}
