package stepper

// ProgressPercent returns how far along the track trackPosition is, in [0, 100].
//
// Before the page is loaded the track is unmeasured and the result is 0.
// Past the last point the result is clamped to 100. A position strictly inside
// segment [i, i+1] yields i whole segment shares plus the fraction covered
// within the segment. A position exactly on a waypoint matches no segment and
// yields 0.
func ProgressPercent(points []Point, trackPosition float64, pageLoaded bool) (float64, error) {
	if !pageLoaded {
		return 0, nil
	}
	if err := requireSegments("progress", points); err != nil {
		return 0, err
	}

	if trackPosition > points[len(points)-1].OffsetY {
		return 100, nil
	}

	share := segmentShare(points)
	var percent float64
	for i := 0; i < len(points)-1; i++ {
		current, next := points[i].OffsetY, points[i+1].OffsetY
		if trackPosition > current && trackPosition < next {
			fraction := (trackPosition - current) / (next - current)
			percent = share*float64(i) + fraction*share
		}
	}
	return percent, nil
}
