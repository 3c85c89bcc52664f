package crewsim

import (
	"math/rand"
	"testing"
	"time"

	"crewsim/geo"
)

func testEngine(seed int64) *TriggerEngine {
	return NewTriggerEngine(DefaultTriggerConfig(), rand.New(rand.NewSource(seed)))
}

func testAgent(id, name string, pos geo.Point) *Agent {
	return &Agent{
		ID: id, Name: name, Position: pos,
		Activity:              StateIdle,
		CurrentTaskIndex:      -1,
		VisionRadius:          DefaultVisionRadius,
		ActionRadius:          DefaultActionRadius,
		PreviouslyVisible:     map[string]bool{},
		NextRandomThoughtTime: 1 << 60, // keep idle_random out of the way
	}
}

func TestDetectSpottedAndLost(t *testing.T) {
	e := testEngine(1)
	a := testAgent("a1", "Red", geo.Point{X: 100, Y: 100})
	b := testAgent("a2", "Blue", geo.Point{X: 200, Y: 100})
	byID := map[string]*Agent{"a1": a, "a2": b}

	a.VisibleAgents = []string{"a2"}
	trigs := e.Detect(a, 0, byID)
	if len(trigs) != 1 || trigs[0].Kind != TriggerAgentSpotted || trigs[0].OtherName != "Blue" {
		t.Fatalf("trigs = %+v, want one agent_spotted of Blue", trigs)
	}

	// Still visible: no new trigger (close pass excluded by distance).
	trigs = e.Detect(a, 100, byID)
	if len(trigs) != 0 {
		t.Fatalf("repeat trigs = %+v, want none", trigs)
	}

	// Gone: lost sight.
	a.VisibleAgents = nil
	trigs = e.Detect(a, 200, byID)
	if len(trigs) != 1 || trigs[0].Kind != TriggerAgentLostSight {
		t.Fatalf("trigs = %+v, want one agent_lost_sight", trigs)
	}
}

func TestDetectClosePassAndRoomEntry(t *testing.T) {
	e := testEngine(1)
	a := testAgent("a1", "Red", geo.Point{X: 100, Y: 100})
	b := testAgent("a2", "Blue", geo.Point{X: 130, Y: 100}) // 30 < close pass 50
	byID := map[string]*Agent{"a1": a, "a2": b}

	a.VisibleAgents = []string{"a2"}
	a.PreviouslyVisible = map[string]bool{"a2": true}
	a.CurrentZone = "Cafeteria"
	a.prevZone = "Weapons"

	trigs := e.Detect(a, 0, byID)
	if len(trigs) != 2 {
		t.Fatalf("trigs = %+v, want close pass + entered room", trigs)
	}
	// Priority: passed_agent_closely (3) before entered_room (4).
	if trigs[0].Kind != TriggerPassedClosely || trigs[1].Kind != TriggerEnteredRoom {
		t.Errorf("order = %v, %v", trigs[0].Kind, trigs[1].Kind)
	}
	if trigs[1].Zone != "Cafeteria" {
		t.Errorf("zone = %q", trigs[1].Zone)
	}
}

func TestDetectRoomEntryEdges(t *testing.T) {
	e := testEngine(1)
	a := testAgent("a1", "Red", geo.Point{X: 100, Y: 100})
	byID := map[string]*Agent{"a1": a}

	// First recorded room: no previous zone, no trigger.
	a.CurrentZone = "Cafeteria"
	if trigs := e.Detect(a, 0, byID); len(trigs) != 0 {
		t.Fatalf("spawn trigs = %+v, want none", trigs)
	}

	// A hallway keeps CurrentZone, so re-entering the same room through
	// one never fires.
	if trigs := e.Detect(a, 100, byID); len(trigs) != 0 {
		t.Fatalf("re-entry trigs = %+v, want none", trigs)
	}

	// A genuinely different room fires exactly once.
	a.CurrentZone = "Weapons"
	trigs := e.Detect(a, 200, byID)
	if len(trigs) != 1 || trigs[0].Kind != TriggerEnteredRoom || trigs[0].Zone != "Weapons" {
		t.Fatalf("trigs = %+v, want one entered_room of Weapons", trigs)
	}
	if trigs := e.Detect(a, 300, byID); len(trigs) != 0 {
		t.Fatalf("repeat trigs = %+v, want none", trigs)
	}
}

func TestDetectPriorityOrdering(t *testing.T) {
	e := testEngine(1)
	a := testAgent("a1", "Red", geo.Point{X: 100, Y: 100})
	b := testAgent("a2", "Blue", geo.Point{X: 300, Y: 100})
	byID := map[string]*Agent{"a1": a, "a2": b}

	a.pendingTriggers = []Trigger{
		{Kind: TriggerHeardSpeech, OtherName: "Blue", Detail: "hi"},
		{Kind: TriggerTaskCompleted, Detail: "fix wiring"},
	}
	a.VisibleAgents = []string{"a2"}

	trigs := e.Detect(a, 0, byID)
	want := []TriggerKind{TriggerAgentSpotted, TriggerTaskCompleted, TriggerHeardSpeech}
	if len(trigs) != len(want) {
		t.Fatalf("trigs = %+v, want %d", trigs, len(want))
	}
	for i, k := range want {
		if trigs[i].Kind != k {
			t.Errorf("trigs[%d] = %v, want %v", i, trigs[i].Kind, k)
		}
	}
}

func TestDetectRandomThoughtReschedules(t *testing.T) {
	e := testEngine(1)
	a := testAgent("a1", "Red", geo.Point{X: 100, Y: 100})
	a.NextRandomThoughtTime = 1000

	trigs := e.Detect(a, 1000, map[string]*Agent{"a1": a})
	if len(trigs) != 1 || trigs[0].Kind != TriggerIdleRandom {
		t.Fatalf("trigs = %+v, want idle_random", trigs)
	}

	next := a.NextRandomThoughtTime - 1000
	lo := int64(float64(DefaultRandomThoughtMin.Milliseconds()) * 0.8)
	hi := int64(float64(DefaultRandomThoughtMax.Milliseconds()) * 1.2)
	if next < lo || next > hi {
		t.Errorf("next delay = %dms, want within jittered [%d, %d]", next, lo, hi)
	}
}

func TestDetectTaskInActionRadius(t *testing.T) {
	e := testEngine(1)
	a := testAgent("a1", "Red", geo.Point{X: 100, Y: 100})
	a.AssignedTasks = []Task{
		{TaskType: "fix wiring", Position: geo.Point{X: 110, Y: 100}},
	}

	trigs := e.Detect(a, 0, map[string]*Agent{"a1": a})
	if len(trigs) != 1 || trigs[0].Kind != TriggerTaskInRadius || trigs[0].Detail != "fix wiring" {
		t.Fatalf("trigs = %+v, want task_in_action_radius", trigs)
	}

	// Not while walking, not once completed.
	a.Activity = StateWalking
	if trigs := e.Detect(a, 0, map[string]*Agent{"a1": a}); len(trigs) != 0 {
		t.Errorf("walking trigs = %+v, want none", trigs)
	}
	a.Activity = StateIdle
	a.AssignedTasks[0].IsCompleted = true
	if trigs := e.Detect(a, 0, map[string]*Agent{"a1": a}); len(trigs) != 0 {
		t.Errorf("completed trigs = %+v, want none", trigs)
	}
}

func TestGateCooldownScaling(t *testing.T) {
	e := testEngine(1)
	a := testAgent("a1", "Red", geo.Point{})
	trig := Trigger{Kind: TriggerEnteredRoom, Zone: "Reactor"}

	// Base thought cooldown 6s. Coefficient 2.0 halves it to 3s.
	a.LastThoughtTime = 0
	if think, _ := e.Gate(a, trig, 2.0, 2999); think {
		t.Error("think granted before the effective cooldown")
	}
	if think, _ := e.Gate(a, trig, 2.0, 3000); !think {
		t.Error("think denied after the effective cooldown")
	}

	// Coefficient 0.5 stretches it to 12s.
	if think, _ := e.Gate(a, trig, 0.5, 9000); think {
		t.Error("think granted under a saturated queue")
	}
	if think, _ := e.Gate(a, trig, 0.5, 12000); !think {
		t.Error("think denied after the stretched cooldown")
	}

	// An in-flight request blocks thinking regardless of clocks.
	a.IsThinking = true
	if think, _ := e.Gate(a, trig, 2.0, 100000); think {
		t.Error("think granted while already thinking")
	}
}

func TestGateSpeechProbability(t *testing.T) {
	cfg := DefaultTriggerConfig()
	cfg.SpeechProbSocial = 1.0
	cfg.SpeechProbOther = 0.0
	e := NewTriggerEngine(cfg, rand.New(rand.NewSource(1)))

	a := testAgent("a1", "Red", geo.Point{})
	a.CanSpeakTo = []string{"Blue"}
	now := DefaultSpeechCooldown.Milliseconds() + 1

	if _, speak := e.Gate(a, Trigger{Kind: TriggerAgentSpotted}, 1.0, now); !speak {
		t.Error("social trigger with p=1 did not grant speech")
	}
	if _, speak := e.Gate(a, Trigger{Kind: TriggerEnteredRoom}, 1.0, now); speak {
		t.Error("non-social trigger with p=0 granted speech")
	}

	// Nobody in range: no speech even at p=1.
	a.CanSpeakTo = nil
	if _, speak := e.Gate(a, Trigger{Kind: TriggerAgentSpotted}, 1.0, now); speak {
		t.Error("speech granted with nobody in range")
	}
}

func TestInitClocksSpreadsAgents(t *testing.T) {
	e := testEngine(42)
	now := time.Now().UnixMilli()

	seen := map[int64]bool{}
	for i := 0; i < 8; i++ {
		a := testAgent("a", "Red", geo.Point{})
		e.InitClocks(a, now)
		if a.LastThoughtTime > now || a.LastThoughtTime < now-DefaultThoughtCooldown.Milliseconds() {
			t.Fatalf("LastThoughtTime = %d outside [now-cooldown, now]", a.LastThoughtTime)
		}
		if a.NextRandomThoughtTime <= now {
			t.Fatalf("NextRandomThoughtTime = %d not in the future", a.NextRandomThoughtTime)
		}
		seen[a.LastThoughtTime] = true
	}
	if len(seen) < 2 {
		t.Error("clocks identical across agents, want randomized spread")
	}
}
