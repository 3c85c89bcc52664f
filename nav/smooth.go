package nav

import (
	"math"

	"crewsim/geo"
)

// ChordSpacing is the maximum distance between consecutive points of a
// smoothed path.
const ChordSpacing = 20.0

// Smooth converts coarse waypoints into a polyline with chord spacing at
// most ChordSpacing, by linear interpolation between consecutive waypoints.
// Endpoints and original waypoints are preserved, and the operation is
// idempotent: smoothing a smoothed path returns it unchanged.
func Smooth(waypoints []geo.Point) []geo.Point {
	if len(waypoints) < 2 {
		return append([]geo.Point(nil), waypoints...)
	}
	out := []geo.Point{waypoints[0]}
	for i := 1; i < len(waypoints); i++ {
		a, b := waypoints[i-1], waypoints[i]
		d := a.Dist(b)
		steps := 1
		if d > ChordSpacing {
			steps = int(math.Ceil(d / ChordSpacing))
		}
		for s := 1; s <= steps; s++ {
			out = append(out, a.Lerp(b, float64(s)/float64(steps)))
		}
	}
	return out
}
