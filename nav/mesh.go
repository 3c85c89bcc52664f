// Package nav builds a visibility graph over precomputed nav nodes and
// answers path queries with A*. Nodes sit at labeled-zone centroids and
// corridor samples; an edge exists between two nodes when the segment
// between them is walkable at every sample. The graph is static; each
// query inserts temporary start and end nodes connected to everything
// they can see.
package nav

import (
	"fmt"

	"crewsim/geo"
)

// Node is a precomputed pathfinding waypoint.
type Node struct {
	ID        string
	Position  geo.Point
	Neighbors []string
}

// Mesh is the static visibility graph.
type Mesh struct {
	m     *geo.Map
	nodes map[string]*Node
	order []string // stable iteration order for determinism
}

// BuildMesh constructs the visibility graph from the map: one node per
// labeled zone (at its centroid, nudged to the nearest walkable point if the
// centroid is blocked) plus one node per nav hint. Edges connect every pair
// of nodes with line of sight.
func BuildMesh(m *geo.Map) *Mesh {
	mesh := &Mesh{m: m, nodes: make(map[string]*Node)}

	for _, z := range m.LabeledZones {
		pos := z.Polygon.Centroid()
		if !m.Walkable(pos) {
			pos = nudgeWalkable(m, pos, z.Polygon)
		}
		mesh.add("zone:"+z.Name, pos)
	}
	for i, p := range m.NavHints {
		mesh.add(fmt.Sprintf("hint:%d", i), p)
	}

	// Dense pairwise line-of-sight pass.
	for i, a := range mesh.order {
		for _, b := range mesh.order[i+1:] {
			na, nb := mesh.nodes[a], mesh.nodes[b]
			if m.SegmentWalkable(na.Position, nb.Position) {
				na.Neighbors = append(na.Neighbors, b)
				nb.Neighbors = append(nb.Neighbors, a)
			}
		}
	}
	return mesh
}

func (mesh *Mesh) add(id string, pos geo.Point) {
	mesh.nodes[id] = &Node{ID: id, Position: pos}
	mesh.order = append(mesh.order, id)
}

// Nodes returns the static nodes in build order.
func (mesh *Mesh) Nodes() []*Node {
	out := make([]*Node, len(mesh.order))
	for i, id := range mesh.order {
		out[i] = mesh.nodes[id]
	}
	return out
}

// nudgeWalkable scans interior samples of poly for the walkable point
// closest to want. Falls back to want itself when nothing qualifies.
func nudgeWalkable(m *geo.Map, want geo.Point, poly geo.Polygon) geo.Point {
	min, max := poly.Bounds()
	best := want
	bestDist := -1.0
	const step = 16.0
	for y := min.Y + step/2; y < max.Y; y += step {
		for x := min.X + step/2; x < max.X; x += step {
			p := geo.Point{X: x, Y: y}
			if !poly.Contains(p) || !m.Walkable(p) {
				continue
			}
			d := p.Dist(want)
			if bestDist < 0 || d < bestDist {
				best, bestDist = p, d
			}
		}
	}
	return best
}
