package crewsim

import (
	"math"

	"crewsim/geo"
)

// Movement constants. Units are map units and seconds.
const (
	CruiseSpeed        = 100.0 // u/s
	waypointSnapRadius = 18.0
	arrivalRadius      = 28.0
	lookAheadSteps     = 4
	whiskerBaseLength  = 60.0
	whiskerSampleStep  = 6.0
	avoidanceWeight    = 1.4
	maxSteeringForce   = 12 * CruiseSpeed
	velocityDamping    = 6.0
	collisionBisection = 6
	stuckDistance      = 6.0
	stuckTime          = 1.2 // s
	facingMinSpeed     = 5.0 // u/s
)

// whisker layout: forward-relative angle and length fraction of the base.
var whiskers = []struct {
	angle  float64 // radians
	length float64 // fraction of whiskerBaseLength
}{
	{0, 1.0},
	{36 * math.Pi / 180, 0.75},
	{-36 * math.Pi / 180, 0.75},
	{13 * math.Pi / 180, 0.5},
	{-13 * math.Pi / 180, 0.5},
}

// MoveResult reports what happened during one movement update.
type MoveResult struct {
	Arrived bool
	Stuck   bool
}

// MovementController advances one agent's kinematics along its smooth path
// each tick: waypoint advance with look-ahead, arrival slow-down, whisker
// obstacle avoidance, collision resolution by bisection, and stuck
// detection. It only reads map geometry; agent state is mutated through
// the caller-owned Agent.
type MovementController struct {
	m *geo.Map
}

// NewMovementController creates a controller over the given map.
func NewMovementController(m *geo.Map) *MovementController {
	return &MovementController{m: m}
}

// Update advances the agent by dt seconds. No-op unless the agent is
// WALKING with a path.
func (mc *MovementController) Update(a *Agent, dt float64) MoveResult {
	if a.Activity != StateWalking || len(a.Path) < 2 || dt <= 0 {
		// Bleed off residual velocity while not walking.
		a.Velocity = a.Velocity.Scale(math.Max(0, 1-velocityDamping*dt))
		return MoveResult{}
	}

	// 1. Waypoint advance, then look-ahead skip.
	last := len(a.Path) - 1
	for a.PathIndex < last && a.Position.Dist(a.Path[a.PathIndex]) <= waypointSnapRadius {
		a.PathIndex++
	}
	for ahead := min(a.PathIndex+lookAheadSteps, last); ahead > a.PathIndex; ahead-- {
		if mc.m.SegmentWalkable(a.Position, a.Path[ahead]) {
			a.PathIndex = ahead
			break
		}
	}

	target := a.Path[a.PathIndex]
	goal := a.Path[last]

	// 2. Desired velocity with linear slow-down near the goal.
	speed := CruiseSpeed
	onFinal := a.PathIndex == last
	distToGoal := a.Position.Dist(goal)
	if onFinal && distToGoal < arrivalRadius {
		speed *= distToGoal / arrivalRadius
	}
	desired := target.Sub(a.Position).Norm().Scale(speed)

	// 3. Whisker avoidance.
	avoid := mc.avoidanceForce(a, desired)

	// 4. Steering, clamped.
	force := desired.Sub(a.Velocity).Add(avoid.Scale(avoidanceWeight))
	if force.Len() > maxSteeringForce {
		force = force.Norm().Scale(maxSteeringForce)
	}

	// 5. Integrate.
	a.Velocity = a.Velocity.Add(force.Scale(dt))
	if a.Velocity.Len() > CruiseSpeed {
		a.Velocity = a.Velocity.Norm().Scale(CruiseSpeed)
	}
	next := a.Position.Add(a.Velocity.Scale(dt))

	// 6. Collision resolve by bisection.
	if !mc.m.Walkable(next) {
		next = mc.resolveCollision(a.Position, next)
		if next == a.Position {
			a.Velocity = geo.Point{}
		}
	}

	// 7. Overshoot clamp on the final segment.
	if onFinal {
		before := goal.Sub(a.Position)
		after := goal.Sub(next)
		if before.Dot(after) < 0 {
			next = goal
			a.Velocity = geo.Point{}
		}
	}

	a.DistanceTraveled += a.Position.Dist(next)
	a.Position = next

	// 8. Facing follows velocity above a minimum speed.
	if a.Velocity.Len() > facingMinSpeed {
		a.Facing = math.Atan2(a.Velocity.Y, a.Velocity.X)
	}

	res := MoveResult{}

	// Arrival: standing on the goal (or within snap of it on the final leg).
	if onFinal && a.Position.Dist(goal) <= waypointSnapRadius {
		res.Arrived = true
		return res
	}

	// 9. Stuck detection.
	if a.Position.Dist(a.progressPoint) >= stuckDistance {
		a.progressPoint = a.Position
		a.progressSince = 0
	} else {
		a.progressSince += dt
		if a.progressSince >= stuckTime {
			a.stuck = true
			res.Stuck = true
		}
	}
	return res
}

// avoidanceForce sums the push-away contributions of the five forward
// whiskers. Each whisker is sampled every whiskerSampleStep units; the
// first non-walkable sample contributes quadratically with proximity.
func (mc *MovementController) avoidanceForce(a *Agent, desired geo.Point) geo.Point {
	heading := a.Velocity
	if heading.Len() < 1e-6 {
		heading = desired
	}
	if heading.Len() < 1e-6 {
		return geo.Point{}
	}
	base := math.Atan2(heading.Y, heading.X)

	var total geo.Point
	for _, w := range whiskers {
		length := whiskerBaseLength * w.length
		dir := geo.Point{X: math.Cos(base + w.angle), Y: math.Sin(base + w.angle)}
		for d := whiskerSampleStep; d <= length; d += whiskerSampleStep {
			sample := a.Position.Add(dir.Scale(d))
			if mc.m.Walkable(sample) {
				continue
			}
			proximity := 1 - d/length
			push := a.Position.Sub(sample).Norm()
			total = total.Add(push.Scale(proximity * proximity * CruiseSpeed))
			break
		}
	}
	return total
}

// resolveCollision bisects [from, to] and returns the last walkable sample.
func (mc *MovementController) resolveCollision(from, to geo.Point) geo.Point {
	lo, hi := 0.0, 1.0
	for i := 0; i < collisionBisection; i++ {
		mid := (lo + hi) / 2
		if mc.m.Walkable(from.Lerp(to, mid)) {
			lo = mid
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return from
	}
	return from.Lerp(to, lo)
}
