package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

// LOSSampleStep is the sampling interval, in map units, used by line-of-sight
// and walkability checks along a segment.
const LOSSampleStep = 8.0

// WalkZone is a walkable region: an outer polygon minus any hole polygons.
type WalkZone struct {
	Outer Polygon   `json:"outer"`
	Holes []Polygon `json:"holes,omitempty"`
}

// LabeledZone is a named room polygon used for zone lookup and nav nodes.
type LabeledZone struct {
	Name    string  `json:"name"`
	Polygon Polygon `json:"polygon"`
}

// Obstacle is an axis-aligned rounded rectangle that blocks walkability.
type Obstacle struct {
	Min    Point   `json:"min"`
	Max    Point   `json:"max"`
	Radius float64 `json:"radius,omitempty"`
}

// contains reports whether p lies inside the rounded rectangle.
func (o Obstacle) contains(p Point) bool {
	if p.X < o.Min.X || p.X > o.Max.X || p.Y < o.Min.Y || p.Y > o.Max.Y {
		return false
	}
	r := o.Radius
	if r <= 0 {
		return true
	}
	// Inside the straight-edged core.
	if p.X >= o.Min.X+r && p.X <= o.Max.X-r {
		return true
	}
	if p.Y >= o.Min.Y+r && p.Y <= o.Max.Y-r {
		return true
	}
	// Corner regions: inside iff within radius of the corner center.
	cx := math.Min(math.Max(p.X, o.Min.X+r), o.Max.X-r)
	cy := math.Min(math.Max(p.Y, o.Min.Y+r), o.Max.Y-r)
	return math.Hypot(p.X-cx, p.Y-cy) <= r
}

// Map is the static world geometry. Read-only after construction.
type Map struct {
	WalkZones    []WalkZone    `json:"walkZones"`
	LabeledZones []LabeledZone `json:"labeledZones"`
	Obstacles    []Obstacle    `json:"obstacles,omitempty"`

	// NavHints are extra nav node positions (corridor samples) that the
	// mesh builder adds alongside labeled-zone centroids.
	NavHints []Point `json:"navHints,omitempty"`
}

// LoadMap parses a map from its JSON representation.
func LoadMap(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse map: %w", err)
	}
	if len(m.WalkZones) == 0 {
		return nil, fmt.Errorf("parse map: no walkable zones")
	}
	return &m, nil
}

// Walkable reports whether p lies in at least one walk zone's outer polygon,
// in none of that zone's holes, and in no obstacle.
func (m *Map) Walkable(p Point) bool {
	for _, o := range m.Obstacles {
		if o.contains(p) {
			return false
		}
	}
	for _, z := range m.WalkZones {
		if !z.Outer.Contains(p) {
			continue
		}
		inHole := false
		for _, h := range z.Holes {
			if h.Contains(p) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// SegmentWalkable reports whether every sample along the segment from a to b,
// taken at LOSSampleStep intervals plus both endpoints, is walkable.
func (m *Map) SegmentWalkable(a, b Point) bool {
	dist := a.Dist(b)
	if dist == 0 {
		return m.Walkable(a)
	}
	steps := int(math.Ceil(dist / LOSSampleStep))
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		if !m.Walkable(a.Lerp(b, t)) {
			return false
		}
	}
	return true
}

// ZoneAt returns the name of the labeled zone containing p, or "" when p is
// in no labeled zone (a hallway).
func (m *Map) ZoneAt(p Point) string {
	for _, z := range m.LabeledZones {
		if z.Polygon.Contains(p) {
			return z.Name
		}
	}
	return ""
}

// Zone returns the labeled zone with the given name, or nil.
func (m *Map) Zone(name string) *LabeledZone {
	for i := range m.LabeledZones {
		if m.LabeledZones[i].Name == name {
			return &m.LabeledZones[i]
		}
	}
	return nil
}
