package crewsim

import (
	"context"
	"time"

	"crewsim/geo"
)

// Provider is the reasoning endpoint abstraction. The provider/openaicompat
// package implements it against any OpenAI-compatible chat completions API.
type Provider interface {
	// Name returns the provider's identifier, used in logs and traces.
	Name() string
	// Chat sends a non-streaming chat request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// ChatMessage is a single message in a chat request.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// SystemMessage creates a system-role chat message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user-role chat message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage creates an assistant-role chat message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// ChatRequest is the provider-agnostic chat request.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the provider-agnostic chat response.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// Usage tracks token counts for one endpoint call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Role is an agent's assigned role, set once at simulation start.
type Role string

const (
	RoleCrewmate Role = "CREWMATE"
	RoleImpostor Role = "IMPOSTOR"
)

// ActivityState is an agent's current activity.
type ActivityState string

const (
	StateIdle      ActivityState = "IDLE"
	StateWalking   ActivityState = "WALKING"
	StateDoingTask ActivityState = "DOING_TASK"
	StateDead      ActivityState = "DEAD"
)

// GoalType is a behavior goal selected by the decision service.
type GoalType string

const (
	GoalGoToTask    GoalType = "GO_TO_TASK"
	GoalWander      GoalType = "WANDER"
	GoalFollowAgent GoalType = "FOLLOW_AGENT"
	GoalAvoidAgent  GoalType = "AVOID_AGENT"
	GoalIdle        GoalType = "IDLE"
	GoalSpeak       GoalType = "SPEAK"
	// Impostor-only goals. KILL closes to action radius and downs the
	// target; HUNT stalks the target's last known position.
	GoalKill GoalType = "KILL"
	GoalHunt GoalType = "HUNT"
)

// Task is a job assigned to an agent at a fixed map position.
type Task struct {
	TaskType    string    `json:"taskType"`
	Room        string    `json:"room"`
	Position    geo.Point `json:"position"`
	Duration    int64     `json:"duration"` // ms
	StartedAt   int64     `json:"startedAt,omitempty"`
	IsCompleted bool      `json:"isCompleted"`
}

// Decision is the parsed output of a goal-selection query.
type Decision struct {
	Goal            GoalType `json:"goalType"`
	TargetAgentID   string   `json:"targetAgentId,omitempty"`
	TargetTaskIndex int      `json:"targetTaskIndex"` // -1 when unset
	Reasoning       string   `json:"reasoning"`
	Thought         string   `json:"thought,omitempty"`
}

// PendingReply is an inbound conversation message awaiting this agent's
// response. Takes priority over normal triggers.
type PendingReply struct {
	ConversationID string
	SpeakerID      string
	SpeakerName    string
	Message        string
	Zone           string
	Timestamp      int64
}

// SpeechEvent is an utterance attached to a tick.
type SpeechEvent struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// ThoughtEvent is an internal monologue line attached to a tick.
type ThoughtEvent struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// TraceEvent records one reasoning dispatch for observability. Emitted on
// the simulation's trace channel and forwarded as llm-trace frames.
type TraceEvent struct {
	AgentID        string               `json:"agentId"`
	AgentName      string               `json:"agentName"`
	RequestType    string               `json:"requestType"` // "thought", "speech", "decision", "reply"
	Prompts        []ChatMessage        `json:"prompts"`
	RawResponse    string               `json:"rawResponse"`
	ParsedDecision *Decision            `json:"parsedDecision,omitempty"`
	Context        string               `json:"context"`
	AgentPositions map[string]geo.Point `json:"agentPositions,omitempty"`
	Tokens         Usage                `json:"tokens"`
	DurationMs     int64                `json:"durationMs"`
	Success        bool                 `json:"success"`
	Timestamp      int64                `json:"timestamp"`
}

// Config holds the simulation tunables. Zero values fall back to defaults.
type Config struct {
	NumAgents        int
	TickHz           int
	ReasoningTimeout time.Duration
	Temperature      float64
	MaxTokens        int

	BaseThoughtCooldown      time.Duration
	BaseSpeechCooldown       time.Duration
	RandomThoughtIntervalMin time.Duration
	RandomThoughtIntervalMax time.Duration

	SpeechRange       float64
	ClosePassDistance float64
	VisionRadius      float64
	ActionRadius      float64

	// Seed drives the simulation's single rand.Rand: names, task
	// assignment, jitter, and speech gates. Zero picks a time-based seed.
	Seed int64
}

// Defaults per the trigger and loop base configuration.
const (
	DefaultTickHz            = 10
	DefaultReasoningTimeout  = 10 * time.Second
	DefaultThoughtCooldown   = 6 * time.Second
	DefaultSpeechCooldown    = 12 * time.Second
	DefaultRandomThoughtMin  = 8 * time.Second
	DefaultRandomThoughtMax  = 30 * time.Second
	DefaultSpeechRange       = 150.0
	DefaultClosePassDistance = 50.0
	DefaultVisionRadius      = 300.0
	DefaultActionRadius      = 40.0
)

func (c Config) withDefaults() Config {
	if c.NumAgents <= 0 {
		c.NumAgents = 4
	}
	if c.TickHz <= 0 {
		c.TickHz = DefaultTickHz
	}
	if c.ReasoningTimeout <= 0 {
		c.ReasoningTimeout = DefaultReasoningTimeout
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.8
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 200
	}
	if c.BaseThoughtCooldown <= 0 {
		c.BaseThoughtCooldown = DefaultThoughtCooldown
	}
	if c.BaseSpeechCooldown <= 0 {
		c.BaseSpeechCooldown = DefaultSpeechCooldown
	}
	if c.RandomThoughtIntervalMin <= 0 {
		c.RandomThoughtIntervalMin = DefaultRandomThoughtMin
	}
	if c.RandomThoughtIntervalMax <= c.RandomThoughtIntervalMin {
		c.RandomThoughtIntervalMax = DefaultRandomThoughtMax
	}
	if c.SpeechRange <= 0 {
		c.SpeechRange = DefaultSpeechRange
	}
	if c.ClosePassDistance <= 0 {
		c.ClosePassDistance = DefaultClosePassDistance
	}
	if c.VisionRadius <= 0 {
		c.VisionRadius = DefaultVisionRadius
	}
	if c.ActionRadius <= 0 {
		c.ActionRadius = DefaultActionRadius
	}
	return c
}
