package stepper

// defaultFirstOffset stands in for the first waypoint before it is measured.
const defaultFirstOffset = 2

type VisibilityInput struct {
	Points         []Point `json:"points"`
	ScrollY        float64 `json:"scroll_y"`
	ViewportHeight float64 `json:"viewport_height"`
	// SectionHeight is the height of the last stepper section.
	SectionHeight float64 `json:"section_height"`
	// NextRegionHeight is the height of the region following that section.
	NextRegionHeight float64 `json:"next_region_height"`
}

type Visibility struct {
	ShouldShowHeader bool `json:"should_show_header"`
	// Measured is false while part of the layout still reports zero size;
	// the caller should leave the header as it is.
	Measured bool `json:"measured"`
}

// ComputeVisibility decides whether the sticky header belongs on screen:
// ScrollY must lie in [first - viewport/2, maxOffset + section + nextRegion).
func ComputeVisibility(in VisibilityInput) Visibility {
	first := float64(defaultFirstOffset)
	if len(in.Points) > 0 {
		first = in.Points[0].OffsetY
	}
	var maxOffset float64
	for _, p := range in.Points {
		if p.OffsetY > maxOffset {
			maxOffset = p.OffsetY
		}
	}

	if maxOffset == 0 || in.SectionHeight == 0 || in.NextRegionHeight == 0 {
		return Visibility{}
	}

	lower := first - in.ViewportHeight/2
	upper := maxOffset + in.SectionHeight + in.NextRegionHeight
	return Visibility{
		ShouldShowHeader: in.ScrollY >= lower && in.ScrollY < upper,
		Measured:         true,
	}
}
