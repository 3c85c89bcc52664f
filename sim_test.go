package crewsim

import (
	"testing"

	"crewsim/geo"
)

var catalogRooms = map[string]bool{
	"Cafeteria": true, "Weapons": true, "Navigation": true, "Reactor": true,
}

func TestNewSimulationSpawnsCrew(t *testing.T) {
	s := newTestSim(t, 4)
	agents := s.Agents()
	if len(agents) != 4 {
		t.Fatalf("agents = %d, want 4", len(agents))
	}

	names := map[string]bool{}
	impostors := 0
	for _, a := range agents {
		if names[a.Name] {
			t.Errorf("duplicate agent name %q", a.Name)
		}
		names[a.Name] = true
		if a.Role == RoleImpostor {
			impostors++
		}
		if a.Activity != StateIdle || a.CurrentTaskIndex != -1 {
			t.Errorf("%s spawned as %v with task %d", a.Name, a.Activity, a.CurrentTaskIndex)
		}
		if !geo.DefaultMap().Walkable(a.Position) {
			t.Errorf("%s spawned in a wall at %v", a.Name, a.Position)
		}
		if len(a.AssignedTasks) != tasksPerAgent {
			t.Errorf("%s has %d tasks, want %d", a.Name, len(a.AssignedTasks), tasksPerAgent)
		}
		for _, task := range a.AssignedTasks {
			if !catalogRooms[task.Room] {
				t.Errorf("%s task %q in unknown room %q", a.Name, task.TaskType, task.Room)
			}
			if task.Duration < 3000 || task.Duration > 8000 {
				t.Errorf("task duration = %d, want [3000, 8000]", task.Duration)
			}
		}
	}
	if impostors != 1 {
		t.Errorf("impostors = %d, want exactly 1", impostors)
	}
}

func TestSeedDeterminism(t *testing.T) {
	a := newTestSim(t, 4)
	b := newTestSim(t, 4)
	for i := range a.Agents() {
		x, y := a.Agents()[i], b.Agents()[i]
		if x.Name != y.Name || x.Role != y.Role {
			t.Fatalf("agent %d diverged: %s/%s vs %s/%s", i, x.Name, x.Role, y.Name, y.Role)
		}
		for j := range x.AssignedTasks {
			if x.AssignedTasks[j].TaskType != y.AssignedTasks[j].TaskType {
				t.Fatalf("agent %d task %d diverged", i, j)
			}
		}
	}
}

func TestGoToTaskWalksAndCompletes(t *testing.T) {
	s := newTestSim(t, 2)
	a := s.Agents()[0]
	now := NowMillis()

	s.applyDecision(a, Decision{Goal: GoalGoToTask, TargetTaskIndex: 0}, now)
	if a.CurrentGoal != GoalGoToTask || a.CurrentTaskIndex != 0 {
		t.Fatalf("goal not installed: %v/%d", a.CurrentGoal, a.CurrentTaskIndex)
	}

	for i := 0; i < 2000 && a.Activity != StateDoingTask; i++ {
		s.step(0.1)
	}
	if a.Activity != StateDoingTask {
		t.Fatalf("never started the task; at %v state %v", a.Position, a.Activity)
	}
	task := a.CurrentTask()
	if task == nil || task.StartedAt == 0 {
		t.Fatalf("DOING_TASK without a started task: %+v", task)
	}
	if d := a.Position.Dist(task.Position); d > a.ActionRadius {
		t.Errorf("started task %v away, action radius %v", d, a.ActionRadius)
	}

	// Skip the wait: backdate the start past the task duration.
	task.StartedAt = NowMillis() - task.Duration - 1
	s.step(0.1)

	if !a.AssignedTasks[0].IsCompleted {
		t.Error("task not completed after its duration elapsed")
	}
	// The goal chain resumes: the same step re-targets the next task.
	if a.CurrentGoal != GoalGoToTask || a.CurrentTaskIndex != 1 {
		t.Errorf("chain did not advance: goal=%v taskIndex=%d", a.CurrentGoal, a.CurrentTaskIndex)
	}
}

func TestSpeakStartsConversation(t *testing.T) {
	s := newTestSim(t, 3)
	a, b, c := s.Agents()[0], s.Agents()[1], s.Agents()[2]

	// Line them up in the weapons room: b is the nearest hearer, c is a
	// bystander still in earshot.
	a.Position = geo.Point{X: 800, Y: 150}
	b.Position = geo.Point{X: 850, Y: 150}
	c.Position = geo.Point{X: 900, Y: 150}

	s.speak(a, "I was in the cafeteria, I swear.", "", 1000)

	conv := s.convs.GetActiveFor(a.ID)
	if conv == nil {
		t.Fatal("no conversation started")
	}
	if !conv.Involves(b.ID) {
		t.Errorf("participants = %v, want nearest hearer %s", conv.Participants, b.Name)
	}
	if conv.Topic != TopicDefense {
		t.Errorf("topic = %v, want defense", conv.Topic)
	}
	if b.Reply == nil || b.Reply.ConversationID != conv.ID || b.Reply.SpeakerID != a.ID {
		t.Errorf("partner reply = %+v", b.Reply)
	}
	if a.Conversation != conv.ID || b.Conversation != conv.ID {
		t.Errorf("conversation ids = %q/%q", a.Conversation, b.Conversation)
	}

	// The bystander overhears it as a trigger, not a reply.
	heard := false
	for _, trig := range c.pendingTriggers {
		if trig.Kind == TriggerHeardSpeech && trig.OtherID == a.ID {
			heard = true
		}
	}
	if !heard {
		t.Errorf("bystander triggers = %+v, want heard_speech", c.pendingTriggers)
	}
	if c.Reply != nil {
		t.Error("bystander owes a reply")
	}
}

func TestReplyRoutesThroughConversation(t *testing.T) {
	s := newTestSim(t, 2)
	a, b := s.Agents()[0], s.Agents()[1]
	a.Position = geo.Point{X: 800, Y: 150}
	b.Position = geo.Point{X: 850, Y: 150}

	s.speak(a, "hey", "", 1000)
	conv := s.convs.GetActiveFor(a.ID)
	if conv == nil {
		t.Fatal("no conversation")
	}

	s.speak(b, "hey yourself", conv.ID, 1100)
	if len(conv.Turns) != 2 || conv.Turns[1].SpeakerID != b.ID {
		t.Fatalf("turns = %+v", conv.Turns)
	}
	if conv.IsActive && (a.Reply == nil || a.Reply.ConversationID != conv.ID) {
		t.Errorf("initiator owes the next line, reply = %+v", a.Reply)
	}
}

func TestKillGoalDownsTarget(t *testing.T) {
	s := newTestSim(t, 3)
	a, b := s.Agents()[0], s.Agents()[1]
	a.Role = RoleImpostor
	a.Position = geo.Point{X: 800, Y: 150}
	b.Position = geo.Point{X: 820, Y: 150} // inside action radius

	a.CurrentGoal = GoalKill
	a.TargetAgentID = b.ID
	s.step(0.1)

	if b.Activity != StateDead {
		t.Fatalf("target state = %v, want DEAD", b.Activity)
	}
	if a.CurrentGoal != "" || a.TargetAgentID != "" {
		t.Errorf("killer goal not cleared: %v/%q", a.CurrentGoal, a.TargetAgentID)
	}

	// Dead agents drop out of the task denominator.
	s.step(0.1)
	snap := latestSnapshot(t, s)
	rec, ok := snap.Agents[b.ID]
	if !ok || rec.Summary.Activity != string(StateDead) {
		t.Errorf("dead agent record = %+v", rec)
	}
	var living int
	for _, ag := range s.Agents() {
		if ag.Alive() {
			living++
		}
	}
	if living != 2 {
		t.Errorf("living = %d, want 2", living)
	}
}

func TestSnapshotsKeepNewestFrames(t *testing.T) {
	s := newTestSim(t, 2)
	for i := 0; i < 12; i++ {
		s.step(0.1)
	}
	snap := latestSnapshot(t, s)
	if snap.Tick != s.tick {
		t.Errorf("latest snapshot tick = %d, want %d", snap.Tick, s.tick)
	}
	if len(snap.Agents) != 2 || snap.GamePhase != "playing" {
		t.Errorf("snapshot = tick %d, %d agents, phase %q", snap.Tick, len(snap.Agents), snap.GamePhase)
	}
}

// latestSnapshot drains the snapshot channel and returns the newest frame.
func latestSnapshot(t *testing.T, s *Simulation) *Snapshot {
	t.Helper()
	var snap *Snapshot
	for {
		select {
		case sn := <-s.Snapshots():
			snap = sn
		default:
			if snap == nil {
				t.Fatal("no snapshot published")
			}
			return snap
		}
	}
}
