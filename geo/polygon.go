package geo

// Polygon is a closed ring of vertices. The ring is implicit: the last
// vertex connects back to the first.
type Polygon []Point

// Contains reports whether p lies inside the polygon, using the even-odd
// ray-crossing rule. Points exactly on an edge count as inside often enough
// for walkability purposes; callers that care sample at sub-unit offsets.
func (poly Polygon) Contains(p Point) bool {
	inside := false
	n := len(poly)
	if n < 3 {
		return false
	}
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) &&
			p.X < (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Centroid returns the area-weighted centroid of the polygon.
// Degenerate polygons (zero area) fall back to the vertex mean.
func (poly Polygon) Centroid() Point {
	n := len(poly)
	if n == 0 {
		return Point{}
	}
	var area, cx, cy float64
	j := n - 1
	for i := 0; i < n; i++ {
		cross := poly[j].X*poly[i].Y - poly[i].X*poly[j].Y
		area += cross
		cx += (poly[j].X + poly[i].X) * cross
		cy += (poly[j].Y + poly[i].Y) * cross
		j = i
	}
	if area == 0 {
		var sx, sy float64
		for _, v := range poly {
			sx += v.X
			sy += v.Y
		}
		return Point{sx / float64(n), sy / float64(n)}
	}
	area *= 0.5
	return Point{cx / (6 * area), cy / (6 * area)}
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (poly Polygon) Bounds() (min, max Point) {
	if len(poly) == 0 {
		return Point{}, Point{}
	}
	min, max = poly[0], poly[0]
	for _, v := range poly[1:] {
		if v.X < min.X {
			min.X = v.X
		}
		if v.Y < min.Y {
			min.Y = v.Y
		}
		if v.X > max.X {
			max.X = v.X
		}
		if v.Y > max.Y {
			max.Y = v.Y
		}
	}
	return min, max
}
