package crewsim

import (
	"sort"

	"crewsim/geo"
)

// AgentSummary is the slow-changing identity facet of an agent record.
type AgentSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    int    `json:"color"`
	Role     string `json:"role"`
	Zone     string `json:"zone"`
	Activity string `json:"activity"`
}

// AgentMovement is the fast-changing kinematic facet.
type AgentMovement struct {
	Position geo.Point   `json:"position"`
	Velocity geo.Point   `json:"velocity"`
	Facing   float64     `json:"facing"`
	Path     []geo.Point `json:"path,omitempty"`
	PathIdx  int         `json:"pathIndex"`
}

// AgentAIState is the reasoning facet.
type AgentAIState struct {
	Goal             string   `json:"goal"`
	TargetAgentID    string   `json:"targetAgentId,omitempty"`
	IsThinking       bool     `json:"isThinking"`
	CurrentThought   string   `json:"currentThought,omitempty"`
	LastSpeech       string   `json:"lastSpeech,omitempty"`
	VisibleAgents    []string `json:"visibleAgents,omitempty"`
	ConversationID   string   `json:"conversationId,omitempty"`
	AssignedTasks    []Task   `json:"assignedTasks,omitempty"`
	CurrentTaskIndex int      `json:"currentTaskIndex"`
	TasksDone        int      `json:"tasksDone"`
	TasksTotal       int      `json:"tasksTotal"`
}

// AgentRecord is one agent's full wire representation, split into facets
// so deltas can flag which parts changed.
type AgentRecord struct {
	Summary  AgentSummary  `json:"summary"`
	Movement AgentMovement `json:"movement"`
	AIState  AgentAIState  `json:"aiState"`
}

// Snapshot is the complete simulation state at one tick. Ticks are
// 1-indexed; tick N's snapshot reflects the world after tick N ran.
type Snapshot struct {
	Tick           int64                  `json:"tick"`
	Timestamp      int64                  `json:"timestamp"`
	Agents         map[string]AgentRecord `json:"agents"`
	TaskProgress   float64                `json:"taskProgress"` // completed/total across living agents
	GamePhase      string                 `json:"gamePhase"`
	RecentThoughts []ThoughtEvent         `json:"recentThoughts,omitempty"`
	RecentSpeech   []SpeechEvent          `json:"recentSpeech,omitempty"`
	QueueStats     QueueStats             `json:"llmQueueStats"`
}

// AgentDelta carries only the changed facets of one agent, with flags
// telling the consumer which facets to overwrite.
type AgentDelta struct {
	SummaryChanged  bool           `json:"summaryChanged"`
	MovementChanged bool           `json:"movementChanged"`
	AIStateChanged  bool           `json:"aiStateChanged"`
	Summary         *AgentSummary  `json:"summary,omitempty"`
	Movement        *AgentMovement `json:"movement,omitempty"`
	AIState         *AgentAIState  `json:"aiState,omitempty"`
}

// Delta is the difference between two consecutive snapshots. Applying it
// to the older snapshot reproduces the newer one exactly.
type Delta struct {
	Tick           int64                 `json:"tick"`
	Timestamp      int64                 `json:"timestamp"`
	Agents         map[string]AgentDelta `json:"agents,omitempty"`
	RemovedAgents  []string              `json:"removedAgents,omitempty"`
	TaskProgress   float64               `json:"taskProgress"`
	GamePhase      string                `json:"gamePhase"`
	RecentThoughts []ThoughtEvent        `json:"recentThoughts,omitempty"`
	RecentSpeech   []SpeechEvent         `json:"recentSpeech,omitempty"`
	QueueStats     QueueStats            `json:"llmQueueStats"`
}

// CaptureAgent renders one agent into its wire record.
func CaptureAgent(a *Agent) AgentRecord {
	done := 0
	for _, t := range a.AssignedTasks {
		if t.IsCompleted {
			done++
		}
	}
	rec := AgentRecord{
		Summary: AgentSummary{
			ID:       a.ID,
			Name:     a.Name,
			Color:    a.Color,
			Role:     string(a.Role),
			Zone:     a.CurrentZone,
			Activity: string(a.Activity),
		},
		Movement: AgentMovement{
			Position: a.Position,
			Velocity: a.Velocity,
			Facing:   a.Facing,
			PathIdx:  a.PathIndex,
		},
		AIState: AgentAIState{
			Goal:             string(a.CurrentGoal),
			TargetAgentID:    a.TargetAgentID,
			IsThinking:       a.IsThinking,
			CurrentThought:   a.CurrentThought,
			LastSpeech:       a.LastSpeech,
			ConversationID:   a.Conversation,
			CurrentTaskIndex: a.CurrentTaskIndex,
			TasksDone:        done,
			TasksTotal:       len(a.AssignedTasks),
		},
	}
	if len(a.AssignedTasks) > 0 {
		rec.AIState.AssignedTasks = append([]Task(nil), a.AssignedTasks...)
	}
	if len(a.Path) > 0 {
		rec.Movement.Path = append([]geo.Point(nil), a.Path...)
	}
	if len(a.VisibleAgents) > 0 {
		rec.AIState.VisibleAgents = append([]string(nil), a.VisibleAgents...)
	}
	return rec
}

func summaryEqual(a, b AgentSummary) bool { return a == b }

func movementEqual(a, b AgentMovement) bool {
	if a.Position != b.Position || a.Velocity != b.Velocity ||
		a.Facing != b.Facing || a.PathIdx != b.PathIdx {
		return false
	}
	if len(a.Path) != len(b.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != b.Path[i] {
			return false
		}
	}
	return true
}

func aiStateEqual(a, b AgentAIState) bool {
	if a.Goal != b.Goal || a.TargetAgentID != b.TargetAgentID ||
		a.IsThinking != b.IsThinking || a.CurrentThought != b.CurrentThought ||
		a.LastSpeech != b.LastSpeech || a.ConversationID != b.ConversationID ||
		a.CurrentTaskIndex != b.CurrentTaskIndex ||
		a.TasksDone != b.TasksDone || a.TasksTotal != b.TasksTotal {
		return false
	}
	if len(a.VisibleAgents) != len(b.VisibleAgents) {
		return false
	}
	for i := range a.VisibleAgents {
		if a.VisibleAgents[i] != b.VisibleAgents[i] {
			return false
		}
	}
	if len(a.AssignedTasks) != len(b.AssignedTasks) {
		return false
	}
	for i := range a.AssignedTasks {
		if a.AssignedTasks[i] != b.AssignedTasks[i] {
			return false
		}
	}
	return true
}

// DiffSnapshots computes the delta from prev to next. Agents absent from
// the delta are unchanged in every facet.
func DiffSnapshots(prev, next *Snapshot) Delta {
	d := Delta{
		Tick:           next.Tick,
		Timestamp:      next.Timestamp,
		TaskProgress:   next.TaskProgress,
		GamePhase:      next.GamePhase,
		RecentThoughts: next.RecentThoughts,
		RecentSpeech:   next.RecentSpeech,
		QueueStats:     next.QueueStats,
	}
	for id, rec := range next.Agents {
		old, existed := prev.Agents[id]
		ad := AgentDelta{}
		if !existed || !summaryEqual(old.Summary, rec.Summary) {
			s := rec.Summary
			ad.SummaryChanged, ad.Summary = true, &s
		}
		if !existed || !movementEqual(old.Movement, rec.Movement) {
			m := rec.Movement
			ad.MovementChanged, ad.Movement = true, &m
		}
		if !existed || !aiStateEqual(old.AIState, rec.AIState) {
			a := rec.AIState
			ad.AIStateChanged, ad.AIState = true, &a
		}
		if ad.SummaryChanged || ad.MovementChanged || ad.AIStateChanged {
			if d.Agents == nil {
				d.Agents = make(map[string]AgentDelta)
			}
			d.Agents[id] = ad
		}
	}
	for id := range prev.Agents {
		if _, ok := next.Agents[id]; !ok {
			d.RemovedAgents = append(d.RemovedAgents, id)
		}
	}
	sort.Strings(d.RemovedAgents)
	return d
}

// ApplyDelta merges a delta into a base snapshot, producing the snapshot
// the delta was diffed against. The base is not mutated.
func ApplyDelta(base *Snapshot, d Delta) *Snapshot {
	next := &Snapshot{
		Tick:           d.Tick,
		Timestamp:      d.Timestamp,
		Agents:         make(map[string]AgentRecord, len(base.Agents)),
		TaskProgress:   d.TaskProgress,
		GamePhase:      d.GamePhase,
		RecentThoughts: d.RecentThoughts,
		RecentSpeech:   d.RecentSpeech,
		QueueStats:     d.QueueStats,
	}
	for id, rec := range base.Agents {
		next.Agents[id] = rec
	}
	for _, id := range d.RemovedAgents {
		delete(next.Agents, id)
	}
	for id, ad := range d.Agents {
		rec := next.Agents[id]
		if ad.SummaryChanged {
			rec.Summary = *ad.Summary
		}
		if ad.MovementChanged {
			rec.Movement = *ad.Movement
		}
		if ad.AIStateChanged {
			rec.AIState = *ad.AIState
		}
		next.Agents[id] = rec
	}
	return next
}
