package crewsim

import "crewsim/geo"

// Perception recomputes what each agent can see and hear. Vision is
// deterministic within a tick: distance-bounded and wall-occluded via the
// same sampled line-of-sight test the pathfinder uses.
type Perception struct {
	m           *geo.Map
	speechRange float64
}

// NewPerception creates a perception pass over the given map.
func NewPerception(m *geo.Map, speechRange float64) *Perception {
	return &Perception{m: m, speechRange: speechRange}
}

// Update recomputes the agent's visible set, audible set, and zone.
// The previous visible set is retained on the agent for the trigger
// engine's spotted/lost-sight comparison. Only living agents appear in
// perception sets.
func (p *Perception) Update(a *Agent, all []*Agent) {
	a.VisibleAgents = a.VisibleAgents[:0]
	a.CanSpeakTo = a.CanSpeakTo[:0]

	for _, b := range all {
		if b.ID == a.ID || !b.Alive() {
			continue
		}
		d := a.Position.Dist(b.Position)
		if d <= a.VisionRadius && p.m.SegmentWalkable(a.Position, b.Position) {
			a.VisibleAgents = append(a.VisibleAgents, b.ID)
		}
		if d <= p.speechRange && p.m.SegmentWalkable(a.Position, b.Position) {
			a.CanSpeakTo = append(a.CanSpeakTo, b.Name)
		}
	}

	// CurrentZone holds the last labeled room; a hallway keeps the
	// previous value rather than clearing it.
	if z := p.m.ZoneAt(a.Position); z != "" {
		a.CurrentZone = z
	}
}

// VisibleSet returns the agent's visible ids as a set for diffing.
func VisibleSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}
