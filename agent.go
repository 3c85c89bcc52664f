package crewsim

import (
	"fmt"
	"log/slog"

	"crewsim/geo"
)

// Agent is one simulated crew member. Created at simulation start, never
// destroyed during a run. All fields are owned by the tick loop; nothing
// outside it mutates an Agent.
type Agent struct {
	ID    string
	Name  string // color word
	Color int    // 24-bit RGB
	Role  Role

	Position geo.Point
	Velocity geo.Point
	Facing   float64

	Path      []geo.Point
	PathIndex int

	Activity      ActivityState
	CurrentZone   string // last labeled room; hallways do not clear it
	CurrentGoal   GoalType
	TargetAgentID string // follow/avoid/speak/kill target, "" when none

	AssignedTasks    []Task
	CurrentTaskIndex int // -1 when no task selected

	VisionRadius float64
	ActionRadius float64

	IsThinking            bool
	LastThoughtTime       int64 // ms
	LastSpeechTime        int64 // ms
	NextRandomThoughtTime int64 // ms

	PreviouslyVisible map[string]bool
	VisibleAgents     []string // ids, recomputed each tick
	CanSpeakTo        []string // names, recomputed each tick

	RecentEvents []string // bounded ring, cap 10
	Reply        *PendingReply
	Conversation string // active conversation id, "" when none

	CurrentThought string
	LastSpeech     string

	DistanceTraveled float64

	prevZone string // CurrentZone at the previous tick, for entered_room detection

	// movement bookkeeping (§ movement controller)
	progressPoint geo.Point
	progressSince float64 // seconds accumulated since last progress
	stuck         bool

	// events raised by the state machine for the trigger engine
	pendingTriggers []Trigger
}

// recentEventCap bounds the RecentEvents ring.
const recentEventCap = 10

// RecordEvent appends a line to the agent's recent-event ring for prompt
// context, evicting the oldest entry beyond the cap.
func (a *Agent) RecordEvent(line string) {
	a.RecentEvents = append(a.RecentEvents, line)
	if len(a.RecentEvents) > recentEventCap {
		a.RecentEvents = a.RecentEvents[len(a.RecentEvents)-recentEventCap:]
	}
}

// Alive reports whether the agent participates in perception and triggers.
func (a *Agent) Alive() bool { return a.Activity != StateDead }

// CurrentTask returns the selected task, or nil.
func (a *Agent) CurrentTask() *Task {
	if a.CurrentTaskIndex < 0 || a.CurrentTaskIndex >= len(a.AssignedTasks) {
		return nil
	}
	return &a.AssignedTasks[a.CurrentTaskIndex]
}

// FirstIncompleteTask returns the index of the first incomplete assigned
// task, or -1 when everything is done.
func (a *Agent) FirstIncompleteTask() int {
	for i := range a.AssignedTasks {
		if !a.AssignedTasks[i].IsCompleted {
			return i
		}
	}
	return -1
}

// --- state machine ---

// setState performs a transition with a reason string for observability.
// DEAD is terminal; transitions out of it are ignored.
func (a *Agent) setState(to ActivityState, reason string, logger *slog.Logger) {
	if a.Activity == StateDead || a.Activity == to {
		return
	}
	logger.Debug("agent state transition",
		"agent", a.Name, "from", a.Activity, "to", to, "reason", reason)
	a.Activity = to
}

// SetPath assigns a smoothed path and transitions IDLE → WALKING.
// A path of fewer than two points is rejected.
func (a *Agent) SetPath(path []geo.Point, reason string, logger *slog.Logger) error {
	if len(path) < 2 {
		return &ErrInvariant{AgentID: a.ID, Message: fmt.Sprintf("path of %d points assigned", len(path))}
	}
	a.Path = path
	a.PathIndex = 0
	a.stuck = false
	a.progressPoint = a.Position
	a.progressSince = 0
	a.setState(StateWalking, reason, logger)
	return nil
}

// Stop clears the path and transitions WALKING → IDLE.
func (a *Agent) Stop(reason string, logger *slog.Logger) {
	a.Path = nil
	a.PathIndex = 0
	a.Velocity = geo.Point{}
	if a.Activity == StateWalking {
		a.setState(StateIdle, reason, logger)
	}
}

// StartTask transitions IDLE → DOING_TASK when the agent stands within its
// action radius of the task position.
func (a *Agent) StartTask(index int, now int64, logger *slog.Logger) error {
	if index < 0 || index >= len(a.AssignedTasks) {
		return &ErrInvariant{AgentID: a.ID, Message: fmt.Sprintf("task index %d out of range", index)}
	}
	task := &a.AssignedTasks[index]
	if task.IsCompleted {
		return &ErrInvariant{AgentID: a.ID, Message: "starting a completed task"}
	}
	if a.Position.Dist(task.Position) > a.ActionRadius {
		return &ErrInvariant{AgentID: a.ID, Message: "starting a task out of action radius"}
	}
	a.CurrentTaskIndex = index
	task.StartedAt = now
	a.setState(StateDoingTask, "task started: "+task.TaskType, logger)
	a.pendingTriggers = append(a.pendingTriggers, Trigger{Kind: TriggerTaskStarted, Detail: task.TaskType})
	a.RecordEvent("started task " + task.TaskType + " in " + task.Room)
	return nil
}

// updateTask completes the running task once its duration has elapsed,
// transitioning DOING_TASK → IDLE.
func (a *Agent) updateTask(now int64, logger *slog.Logger) {
	if a.Activity != StateDoingTask {
		return
	}
	task := a.CurrentTask()
	if task == nil || task.StartedAt == 0 {
		logger.Error("invariant violated", "agent", a.Name, "detail", "DOING_TASK without a started task")
		a.Stop("invariant recovery", logger)
		a.setState(StateIdle, "invariant recovery", logger)
		a.CurrentTaskIndex = -1
		return
	}
	if now-task.StartedAt < task.Duration {
		return
	}
	task.IsCompleted = true
	a.pendingTriggers = append(a.pendingTriggers, Trigger{Kind: TriggerTaskCompleted, Detail: task.TaskType})
	a.RecordEvent("completed task " + task.TaskType + " in " + task.Room)
	a.CurrentTaskIndex = -1
	a.setState(StateIdle, "task completed: "+task.TaskType, logger)
}

// Kill transitions any living state to DEAD. Reserved for kill events;
// the core never calls it on its own.
func (a *Agent) Kill(reason string, logger *slog.Logger) {
	if a.Activity == StateDead {
		return
	}
	a.Path = nil
	a.Velocity = geo.Point{}
	a.setState(StateDead, reason, logger)
}

// checkInvariants validates the per-tick agent invariants and recovers by
// stopping the agent when one is violated.
func (a *Agent) checkInvariants(logger *slog.Logger) {
	if a.Activity == StateWalking && len(a.Path) < 2 {
		logger.Error("invariant violated", "agent", a.Name, "detail", "WALKING without waypoints")
		a.Stop("invariant recovery", logger)
	}
	if a.Activity == StateDoingTask && a.CurrentTask() == nil {
		logger.Error("invariant violated", "agent", a.Name, "detail", "DOING_TASK without a task")
		a.setState(StateIdle, "invariant recovery", logger)
	}
}
