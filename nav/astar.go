package nav

import (
	"container/heap"

	"crewsim/geo"
)

// Path is the result of a FindPath query.
type Path struct {
	Success   bool
	Waypoints []geo.Point
	Cost      float64
}

const (
	startID = "__start__"
	endID   = "__end__"
)

// FindPath runs A* over the visibility graph from start to end. Temporary
// start and end nodes are connected to every static node they can see (and
// to each other when they share line of sight). Returns an unsuccessful
// Path when either endpoint sees nothing.
func (mesh *Mesh) FindPath(start, end geo.Point) Path {
	// Adjacency for this query: static edges plus dynamic connections.
	pos := map[string]geo.Point{startID: start, endID: end}
	adj := map[string][]string{}
	for _, id := range mesh.order {
		n := mesh.nodes[id]
		pos[id] = n.Position
		adj[id] = n.Neighbors
	}

	connect := func(dyn string) int {
		count := 0
		for _, id := range mesh.order {
			if mesh.m.SegmentWalkable(pos[dyn], pos[id]) {
				adj[dyn] = append(adj[dyn], id)
				adj[id] = append(adj[id], dyn)
				count++
			}
		}
		return count
	}
	startLinks := connect(startID)
	endLinks := connect(endID)
	if mesh.m.SegmentWalkable(start, end) {
		adj[startID] = append(adj[startID], endID)
		adj[endID] = append(adj[endID], startID)
		startLinks++
		endLinks++
	}
	if startLinks == 0 || endLinks == 0 {
		return Path{}
	}

	// A*: Euclidean heuristic, ties broken by lower g-cost.
	g := map[string]float64{startID: 0}
	came := map[string]string{}
	open := &nodeQueue{}
	heap.Init(open)
	heap.Push(open, &queued{id: startID, f: start.Dist(end), g: 0})
	closed := map[string]bool{}

	for open.Len() > 0 {
		cur := heap.Pop(open).(*queued)
		if closed[cur.id] {
			continue
		}
		if cur.id == endID {
			return Path{Success: true, Waypoints: reconstruct(came, pos), Cost: g[endID]}
		}
		closed[cur.id] = true

		for _, nb := range adj[cur.id] {
			if closed[nb] {
				continue
			}
			tentative := g[cur.id] + pos[cur.id].Dist(pos[nb])
			if old, ok := g[nb]; ok && tentative >= old {
				continue
			}
			g[nb] = tentative
			came[nb] = cur.id
			heap.Push(open, &queued{id: nb, f: tentative + pos[nb].Dist(end), g: tentative})
		}
	}
	return Path{}
}

func reconstruct(came map[string]string, pos map[string]geo.Point) []geo.Point {
	ids := []string{endID}
	for cur := endID; ; {
		prev, ok := came[cur]
		if !ok {
			break
		}
		ids = append(ids, prev)
		cur = prev
	}
	out := make([]geo.Point, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = pos[id]
	}
	return out
}

// queued is an open-set entry. f is g + heuristic; g breaks f ties.
type queued struct {
	id   string
	f, g float64
}

type nodeQueue []*queued

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].g < q[j].g
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)   { *q = append(*q, x.(*queued)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
