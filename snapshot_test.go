package crewsim

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"crewsim/geo"
)

func baseSnapshot() *Snapshot {
	return &Snapshot{
		Tick:      10,
		Timestamp: 1000,
		GamePhase: "playing",
		Agents: map[string]AgentRecord{
			"a1": {
				Summary:  AgentSummary{ID: "a1", Name: "Red", Color: 0xC51111, Zone: "Cafeteria", Activity: "IDLE"},
				Movement: AgentMovement{Position: geo.Point{X: 100, Y: 100}},
				AIState:  AgentAIState{Goal: "WANDER", TasksTotal: 3},
			},
			"a2": {
				Summary:  AgentSummary{ID: "a2", Name: "Blue", Color: 0x132ED1, Zone: "Weapons", Activity: "WALKING"},
				Movement: AgentMovement{Position: geo.Point{X: 400, Y: 200}, Velocity: geo.Point{X: 90, Y: 0}, Path: []geo.Point{{X: 400, Y: 200}, {X: 600, Y: 200}}},
				AIState:  AgentAIState{Goal: "GO_TO_TASK", TasksTotal: 3},
			},
		},
	}
}

func TestCaptureAgentCarriesRoleAndTasks(t *testing.T) {
	a := &Agent{
		ID:   "a1",
		Name: "Red",
		Role: RoleImpostor,
		AssignedTasks: []Task{
			{TaskType: "fix wiring", Room: "Cafeteria", Position: geo.Point{X: 200, Y: 150}, Duration: 4000, IsCompleted: true},
			{TaskType: "download data", Room: "Weapons", Position: geo.Point{X: 800, Y: 150}, Duration: 5000},
		},
		CurrentTaskIndex: 1,
		Activity:         StateIdle,
	}

	rec := CaptureAgent(a)
	if rec.Summary.Role != "IMPOSTOR" {
		t.Errorf("role = %q, want IMPOSTOR", rec.Summary.Role)
	}
	if len(rec.AIState.AssignedTasks) != 2 || rec.AIState.AssignedTasks[1].TaskType != "download data" {
		t.Errorf("assignedTasks = %+v", rec.AIState.AssignedTasks)
	}
	if rec.AIState.CurrentTaskIndex != 1 || rec.AIState.TasksDone != 1 || rec.AIState.TasksTotal != 2 {
		t.Errorf("task state = %d/%d/%d, want 1/1/2",
			rec.AIState.CurrentTaskIndex, rec.AIState.TasksDone, rec.AIState.TasksTotal)
	}

	// The wire record must expose the fields a viewer renders from.
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"role"`, `"assignedTasks"`, `"currentTaskIndex"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("marshaled record missing %s", key)
		}
	}

	// The capture is a copy: mutating the agent must not reach the record.
	a.AssignedTasks[1].IsCompleted = true
	if rec.AIState.AssignedTasks[1].IsCompleted {
		t.Error("captured task list aliases the agent's slice")
	}
}

func TestDiffSnapshotsFlagsChangedFacets(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Tick = 11
	next.Timestamp = 1100

	// a2 moved; a1 changed its mind; nothing changed either summary.
	a2 := next.Agents["a2"]
	a2.Movement.Position = geo.Point{X: 409, Y: 200}
	next.Agents["a2"] = a2
	a1 := next.Agents["a1"]
	a1.AIState.CurrentThought = "quiet in here"
	next.Agents["a1"] = a1

	d := DiffSnapshots(prev, next)
	if d.Tick != 11 || len(d.Agents) != 2 {
		t.Fatalf("delta = %+v", d)
	}

	ad1 := d.Agents["a1"]
	if ad1.SummaryChanged || ad1.MovementChanged || !ad1.AIStateChanged {
		t.Errorf("a1 flags = %+v, want aiState only", ad1)
	}
	if ad1.AIState == nil || ad1.AIState.CurrentThought != "quiet in here" {
		t.Errorf("a1 aiState payload = %+v", ad1.AIState)
	}

	ad2 := d.Agents["a2"]
	if ad2.SummaryChanged || !ad2.MovementChanged || ad2.AIStateChanged {
		t.Errorf("a2 flags = %+v, want movement only", ad2)
	}
}

func TestDiffSnapshotsNoChanges(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Tick = 11

	d := DiffSnapshots(prev, next)
	if d.Agents != nil {
		t.Errorf("delta agents = %+v, want none", d.Agents)
	}
}

func TestDiffSnapshotsNewAgentCarriesAllFacets(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Agents["a3"] = AgentRecord{
		Summary: AgentSummary{ID: "a3", Name: "Green", Zone: "Reactor", Activity: "IDLE"},
	}

	d := DiffSnapshots(prev, next)
	ad := d.Agents["a3"]
	if !ad.SummaryChanged || !ad.MovementChanged || !ad.AIStateChanged {
		t.Errorf("new agent flags = %+v, want all facets", ad)
	}
}

func TestDiffSnapshotsRemovedAgents(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Tick = 11
	delete(next.Agents, "a2")

	d := DiffSnapshots(prev, next)
	if len(d.RemovedAgents) != 1 || d.RemovedAgents[0] != "a2" {
		t.Fatalf("removedAgents = %v, want [a2]", d.RemovedAgents)
	}

	got := ApplyDelta(prev, d)
	if _, ok := got.Agents["a2"]; ok {
		t.Error("ApplyDelta kept a removed agent")
	}
	if !reflect.DeepEqual(got, next) {
		t.Errorf("replayed snapshot diverged:\n got %+v\nwant %+v", got, next)
	}
	if _, ok := prev.Agents["a2"]; !ok {
		t.Error("ApplyDelta mutated the base snapshot")
	}
}

func TestApplyDeltaReproducesSnapshot(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Tick = 11
	next.Timestamp = 1100
	next.TaskProgress = 0.25
	next.RecentSpeech = []SpeechEvent{{AgentID: "a2", AgentName: "Blue", Text: "on my way", Timestamp: 1100}}

	a2 := next.Agents["a2"]
	a2.Summary.Zone = "Navigation"
	a2.Movement.Position = geo.Point{X: 620, Y: 200}
	a2.Movement.Path = nil
	a2.AIState.VisibleAgents = []string{"a1"}
	next.Agents["a2"] = a2

	d := DiffSnapshots(prev, next)
	got := ApplyDelta(prev, d)
	if !reflect.DeepEqual(got, next) {
		t.Errorf("replayed snapshot diverged:\n got %+v\nwant %+v", got, next)
	}

	// The base must survive untouched.
	if prev.Agents["a2"].Summary.Zone != "Weapons" {
		t.Error("ApplyDelta mutated the base snapshot")
	}
}
