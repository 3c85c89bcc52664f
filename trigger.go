package crewsim

import (
	"math/rand"
	"time"
)

// TriggerKind names an event that makes an agent eligible to think.
type TriggerKind string

const (
	TriggerAgentSpotted   TriggerKind = "agent_spotted"
	TriggerAgentLostSight TriggerKind = "agent_lost_sight"
	TriggerPassedClosely  TriggerKind = "passed_agent_closely"
	TriggerEnteredRoom    TriggerKind = "entered_room"
	TriggerTaskCompleted  TriggerKind = "task_completed"
	TriggerTaskStarted    TriggerKind = "task_started"
	TriggerArrived        TriggerKind = "arrived_at_destination"
	TriggerHeardSpeech    TriggerKind = "heard_speech"
	TriggerTaskInRadius   TriggerKind = "task_in_action_radius"
	TriggerIdleRandom     TriggerKind = "idle_random"
)

// triggerPriority orders trigger kinds; lower is more urgent.
var triggerPriority = map[TriggerKind]int{
	TriggerAgentSpotted:   1,
	TriggerAgentLostSight: 2,
	TriggerPassedClosely:  3,
	TriggerEnteredRoom:    4,
	TriggerTaskCompleted:  5,
	TriggerTaskStarted:    6,
	TriggerArrived:        7,
	TriggerHeardSpeech:    8,
	TriggerTaskInRadius:   9,
	TriggerIdleRandom:     10,
}

// socialTriggers grant the higher speech probability.
var socialTriggers = map[TriggerKind]bool{
	TriggerAgentSpotted:  true,
	TriggerPassedClosely: true,
	TriggerHeardSpeech:   true,
}

// Trigger is one detected event.
type Trigger struct {
	Kind      TriggerKind
	OtherID   string
	OtherName string
	Zone      string
	Detail    string
}

// TriggerConfig holds base cooldowns and perception thresholds.
type TriggerConfig struct {
	BaseThoughtCooldown      time.Duration
	BaseSpeechCooldown       time.Duration
	RandomThoughtIntervalMin time.Duration
	RandomThoughtIntervalMax time.Duration
	ClosePassDistance        float64
	SpeechProbSocial         float64
	SpeechProbOther          float64
}

// DefaultTriggerConfig returns the base trigger configuration.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		BaseThoughtCooldown:      DefaultThoughtCooldown,
		BaseSpeechCooldown:       DefaultSpeechCooldown,
		RandomThoughtIntervalMin: DefaultRandomThoughtMin,
		RandomThoughtIntervalMax: DefaultRandomThoughtMax,
		ClosePassDistance:        DefaultClosePassDistance,
		SpeechProbSocial:         0.5,
		SpeechProbOther:          0.2,
	}
}

// TriggerEngine detects per-tick trigger events and gates them through
// per-agent thought/speech cooldowns scaled by the reasoning queue's
// thinking coefficient.
type TriggerEngine struct {
	cfg TriggerConfig
	rng *rand.Rand
}

// NewTriggerEngine creates a trigger engine. The rng is shared with the
// simulation so runs are reproducible under a fixed seed.
func NewTriggerEngine(cfg TriggerConfig, rng *rand.Rand) *TriggerEngine {
	return &TriggerEngine{cfg: cfg, rng: rng}
}

// InitClocks randomizes an agent's trigger clocks so a fleet does not
// synchronize its first thoughts.
func (e *TriggerEngine) InitClocks(a *Agent, now int64) {
	a.LastThoughtTime = now - e.rng.Int63n(e.cfg.BaseThoughtCooldown.Milliseconds()+1)
	a.LastSpeechTime = now - e.rng.Int63n(e.cfg.BaseSpeechCooldown.Milliseconds()+1)
	a.NextRandomThoughtTime = now + e.randomThoughtDelay()
}

// randomThoughtDelay draws the next random-thought interval with ±20%
// per-call jitter.
func (e *TriggerEngine) randomThoughtDelay() int64 {
	lo := e.cfg.RandomThoughtIntervalMin.Milliseconds()
	hi := e.cfg.RandomThoughtIntervalMax.Milliseconds()
	base := lo + e.rng.Int63n(hi-lo+1)
	jitter := 0.8 + 0.4*e.rng.Float64()
	return int64(float64(base) * jitter)
}

// Detect collects this tick's triggers for one agent, highest priority
// first. It consumes events queued by the state machine and compares the
// current visible set against the previous tick's.
func (e *TriggerEngine) Detect(a *Agent, now int64, byID map[string]*Agent) []Trigger {
	var out []Trigger

	cur := VisibleSet(a.VisibleAgents)

	// Spotted: visible now, not visible last tick.
	for _, id := range a.VisibleAgents {
		if !a.PreviouslyVisible[id] {
			out = append(out, Trigger{Kind: TriggerAgentSpotted, OtherID: id, OtherName: agentName(byID, id)})
		}
	}
	// Lost sight: visible last tick, gone now.
	for id := range a.PreviouslyVisible {
		if !cur[id] {
			out = append(out, Trigger{Kind: TriggerAgentLostSight, OtherID: id, OtherName: agentName(byID, id)})
		}
	}
	// Close pass.
	for _, id := range a.VisibleAgents {
		if b, ok := byID[id]; ok && a.Position.Dist(b.Position) <= e.cfg.ClosePassDistance {
			out = append(out, Trigger{Kind: TriggerPassedClosely, OtherID: id, OtherName: b.Name})
		}
	}
	// Entered room: a move between two labeled rooms. The first room an
	// agent ever records, and a re-entry into the same room through a
	// hallway, do not count.
	if a.CurrentZone != "" && a.prevZone != "" && a.CurrentZone != a.prevZone {
		out = append(out, Trigger{Kind: TriggerEnteredRoom, Zone: a.CurrentZone})
	}
	a.prevZone = a.CurrentZone
	a.PreviouslyVisible = cur

	// State-machine and coordinator events queued since last tick.
	out = append(out, a.pendingTriggers...)
	a.pendingTriggers = a.pendingTriggers[:0]

	// Standing idle next to one of the agent's own incomplete tasks.
	if a.Activity == StateIdle {
		for i := range a.AssignedTasks {
			t := &a.AssignedTasks[i]
			if !t.IsCompleted && a.Position.Dist(t.Position) <= a.ActionRadius {
				out = append(out, Trigger{Kind: TriggerTaskInRadius, Detail: t.TaskType})
				break
			}
		}
	}

	// Random idle thought.
	if now >= a.NextRandomThoughtTime {
		out = append(out, Trigger{Kind: TriggerIdleRandom})
		a.NextRandomThoughtTime = now + e.randomThoughtDelay()
	}

	sortTriggers(out)
	return out
}

// sortTriggers orders by priority, stable within a kind.
func sortTriggers(ts []Trigger) {
	// Insertion sort: trigger lists are tiny and mostly sorted.
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && triggerPriority[ts[j].Kind] < triggerPriority[ts[j-1].Kind]; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

// Gate decides whether the agent may think and/or speak right now, given
// the highest-priority trigger and the queue's thinking coefficient.
// Effective cooldowns are base / coefficient: a saturated queue (low
// coefficient) lengthens them, a bored queue shortens them.
func (e *TriggerEngine) Gate(a *Agent, t Trigger, coefficient float64, now int64) (think, speak bool) {
	if coefficient <= 0 {
		return false, false
	}
	effThought := int64(float64(e.cfg.BaseThoughtCooldown.Milliseconds()) / coefficient)
	effSpeech := int64(float64(e.cfg.BaseSpeechCooldown.Milliseconds()) / coefficient)

	if !a.IsThinking && now-a.LastThoughtTime >= effThought {
		think = true
	}

	if len(a.CanSpeakTo) > 0 && now-a.LastSpeechTime >= effSpeech {
		p := e.cfg.SpeechProbOther
		if socialTriggers[t.Kind] {
			p = e.cfg.SpeechProbSocial
		}
		if e.rng.Float64() < p {
			speak = true
		}
	}
	return think, speak
}

func agentName(byID map[string]*Agent, id string) string {
	if a, ok := byID[id]; ok {
		return a.Name
	}
	return id
}
