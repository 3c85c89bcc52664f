package crewsim

import (
	"testing"

	"crewsim/geo"
)

// openMap is a single unobstructed 1000x600 room.
func openMap() *geo.Map {
	return &geo.Map{
		WalkZones: []geo.WalkZone{{
			Outer: geo.Polygon{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 600}, {X: 0, Y: 600}},
		}},
		LabeledZones: []geo.LabeledZone{{
			Name:    "Hall",
			Polygon: geo.Polygon{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 600}, {X: 0, Y: 600}},
		}},
	}
}

// pocketMap is a 10x10 walkable pocket; everything outside is void, so an
// agent can never move more than a few units from its spawn.
func pocketMap() *geo.Map {
	return &geo.Map{
		WalkZones: []geo.WalkZone{{
			Outer: geo.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
		}},
	}
}

func walkingAgent(t *testing.T, path []geo.Point) *Agent {
	t.Helper()
	a := testAgent("a1", "Red", path[0])
	if err := a.SetPath(path, "test", nopLogger); err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	return a
}

func TestUpdateDampsVelocityWhenIdle(t *testing.T) {
	mc := NewMovementController(openMap())
	a := testAgent("a1", "Red", geo.Point{X: 500, Y: 300})
	a.Velocity = geo.Point{X: 80, Y: 0}

	mc.Update(a, 0.1)
	if v := a.Velocity.Len(); v >= 80 {
		t.Errorf("velocity = %v, want damped below 80", v)
	}
	for i := 0; i < 50; i++ {
		mc.Update(a, 0.1)
	}
	if v := a.Velocity.Len(); v > 1 {
		t.Errorf("velocity after damping = %v, want near zero", v)
	}
	if a.Position != (geo.Point{X: 500, Y: 300}) {
		t.Errorf("idle agent moved to %v", a.Position)
	}
}

func TestWalkStraightPathArrives(t *testing.T) {
	mc := NewMovementController(openMap())
	goal := geo.Point{X: 400, Y: 300}
	a := walkingAgent(t, []geo.Point{{X: 100, Y: 300}, {X: 250, Y: 300}, goal})

	arrived := false
	for i := 0; i < 100; i++ {
		if mc.Update(a, 0.1).Arrived {
			arrived = true
			break
		}
	}
	if !arrived {
		t.Fatalf("never arrived; at %v", a.Position)
	}
	if d := a.Position.Dist(goal); d > waypointSnapRadius {
		t.Errorf("final distance to goal = %v, want <= %v", d, waypointSnapRadius)
	}
	if a.DistanceTraveled < 250 {
		t.Errorf("distance traveled = %v, want >= straight-line 300ish", a.DistanceTraveled)
	}
}

func TestWalkSpeedCappedAtCruise(t *testing.T) {
	mc := NewMovementController(openMap())
	a := walkingAgent(t, []geo.Point{{X: 100, Y: 300}, {X: 900, Y: 300}})

	for i := 0; i < 30; i++ {
		mc.Update(a, 0.1)
		if v := a.Velocity.Len(); v > CruiseSpeed+1e-9 {
			t.Fatalf("speed = %v exceeds cruise %v", v, CruiseSpeed)
		}
	}
	// After enough ticks the agent should actually be cruising.
	if v := a.Velocity.Len(); v < CruiseSpeed*0.9 {
		t.Errorf("cruising speed = %v, want near %v", v, CruiseSpeed)
	}
}

func TestArrivalSlowsDown(t *testing.T) {
	mc := NewMovementController(openMap())
	goal := geo.Point{X: 300, Y: 300}
	a := walkingAgent(t, []geo.Point{{X: 100, Y: 300}, goal})

	var speedFar, speedNear float64
	for i := 0; i < 100; i++ {
		res := mc.Update(a, 0.05)
		d := a.Position.Dist(goal)
		if d > 100 {
			speedFar = a.Velocity.Len()
		}
		if d < arrivalRadius && !res.Arrived {
			speedNear = a.Velocity.Len()
		}
		if res.Arrived {
			break
		}
	}
	if speedNear == 0 || speedFar == 0 {
		t.Fatal("test did not observe both phases")
	}
	if speedNear >= speedFar {
		t.Errorf("near speed %v not below far speed %v", speedNear, speedFar)
	}
}

func TestFacingFollowsVelocity(t *testing.T) {
	mc := NewMovementController(openMap())
	a := walkingAgent(t, []geo.Point{{X: 100, Y: 300}, {X: 500, Y: 300}})
	a.Facing = 2.5

	for i := 0; i < 10; i++ {
		mc.Update(a, 0.1)
	}
	// Walking +X: facing should settle near zero.
	if a.Facing > 0.3 || a.Facing < -0.3 {
		t.Errorf("facing = %v, want near 0", a.Facing)
	}
}

func TestStuckAgainstDeadEnd(t *testing.T) {
	mc := NewMovementController(pocketMap())
	// Goal is far outside the pocket; no progress is possible.
	a := walkingAgent(t, []geo.Point{{X: 5, Y: 5}, {X: 300, Y: 5}})

	stuck := false
	for i := 0; i < 60; i++ {
		if mc.Update(a, 0.1).Stuck {
			stuck = true
			break
		}
	}
	if !stuck {
		t.Fatalf("agent never reported stuck; at %v", a.Position)
	}
	if !a.stuck {
		t.Error("agent stuck flag not set")
	}
	// The agent must not have escaped the walkable pocket.
	if !mc.m.Walkable(a.Position) {
		t.Errorf("agent ended in a wall at %v", a.Position)
	}
}

func TestSetPathRejectsDegenerate(t *testing.T) {
	a := testAgent("a1", "Red", geo.Point{X: 10, Y: 10})
	if err := a.SetPath([]geo.Point{{X: 10, Y: 10}}, "test", nopLogger); err == nil {
		t.Fatal("single-point path accepted")
	}
	if a.Activity != StateIdle {
		t.Errorf("activity = %v, want IDLE", a.Activity)
	}
}

func TestStopReturnsToIdle(t *testing.T) {
	mc := NewMovementController(openMap())
	a := walkingAgent(t, []geo.Point{{X: 100, Y: 300}, {X: 500, Y: 300}})
	for i := 0; i < 5; i++ {
		mc.Update(a, 0.1)
	}

	a.Stop("test", nopLogger)
	if a.Activity != StateIdle || len(a.Path) != 0 {
		t.Errorf("after stop: activity=%v path=%d", a.Activity, len(a.Path))
	}
	if a.Velocity != (geo.Point{}) {
		t.Errorf("velocity = %v, want zero", a.Velocity)
	}
}
