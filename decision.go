package crewsim

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"crewsim/geo"
)

// VisibleAgent is one agent in another's field of view, as rendered into
// prompts.
type VisibleAgent struct {
	ID       string
	Name     string
	Distance float64
}

// AgentContext is the immutable snapshot of one agent's situation taken at
// dispatch time. The tick loop keeps mutating the Agent; prompts are built
// from this copy.
type AgentContext struct {
	AgentID   string
	AgentName string
	Role      Role
	Zone      string
	Position  geo.Point

	Visible    []VisibleAgent
	CanSpeakTo []string
	KnownNames []string // every agent name in the run, for speech validation

	Tasks            []Task
	CurrentTaskIndex int
	RecentEvents     []string

	Trigger Trigger
	Reply   *PendingReply

	AgentPositions map[string]geo.Point
}

// Request kinds, recorded on traces and results.
const (
	RequestThought  = "thought"
	RequestSpeech   = "speech"
	RequestDecision = "decision"
	RequestReply    = "reply"
)

// Result is one resolved reasoning request, delivered on the service's
// results channel for the tick loop to join.
type Result struct {
	AgentID        string
	Kind           string
	Trigger        Trigger
	Thought        string
	Speech         string
	Decision       *Decision
	ConversationID string
	Err            error
	Trace          *TraceEvent
}

// DecisionOption configures a DecisionService.
type DecisionOption func(*DecisionService)

// WithDecisionLogger sets the structured logger.
func WithDecisionLogger(l *slog.Logger) DecisionOption {
	return func(s *DecisionService) { s.logger = l }
}

// WithDecisionTracer sets the tracer for reasoning spans.
func WithDecisionTracer(t Tracer) DecisionOption {
	return func(s *DecisionService) { s.tracer = t }
}

// WithTemperature sets the sampling temperature sent to the provider.
func WithTemperature(t float64) DecisionOption {
	return func(s *DecisionService) { s.temperature = t }
}

// WithMaxTokens sets the completion token cap sent to the provider.
func WithMaxTokens(n int) DecisionOption {
	return func(s *DecisionService) { s.maxTokens = n }
}

// WithRequestTimeout sets the per-request deadline passed to the queue.
func WithRequestTimeout(d time.Duration) DecisionOption {
	return func(s *DecisionService) { s.timeout = d }
}

// DecisionService turns agent situations into prompts, dispatches them
// through the serialized reasoning queue, and parses the responses. A nil
// provider runs the service headless: every request resolves immediately
// from the static fallback tables, so the simulation works without an
// endpoint.
type DecisionService struct {
	provider Provider
	queue    *Queue
	tracer   Tracer
	logger   *slog.Logger

	temperature float64
	maxTokens   int
	timeout     time.Duration

	results chan Result
}

// NewDecisionService creates the service. Call Results to receive resolved
// requests.
func NewDecisionService(provider Provider, queue *Queue, opts ...DecisionOption) *DecisionService {
	s := &DecisionService{
		provider:    provider,
		queue:       queue,
		tracer:      nopTracer{},
		logger:      nopLogger,
		temperature: 0.8,
		maxTokens:   200,
		timeout:     DefaultReasoningTimeout,
		results:     make(chan Result, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Results is the channel the tick loop drains each tick. Results arrive in
// completion order, not request order.
func (s *DecisionService) Results() <-chan Result { return s.results }

// Headless reports whether the service runs without a provider.
func (s *DecisionService) Headless() bool { return s.provider == nil }

// RequestThought asks for a first-person internal monologue line. On
// endpoint failure a canned thought keyed by the trigger is substituted,
// so the agent never goes silent internally.
func (s *DecisionService) RequestThought(actx AgentContext) {
	if s.provider == nil {
		s.results <- Result{
			AgentID: actx.AgentID, Kind: RequestThought, Trigger: actx.Trigger,
			Thought: fallbackThought(actx.Trigger.Kind, int(NowMillis())),
		}
		return
	}
	prompts := buildThoughtPrompt(actx)
	s.dispatch(actx, RequestThought, prompts, func(o Outcome, trace *TraceEvent) Result {
		r := Result{AgentID: actx.AgentID, Kind: RequestThought, Trigger: actx.Trigger, Trace: trace}
		if o.Err != nil {
			r.Thought = fallbackThought(actx.Trigger.Kind, int(NowMillis()))
			r.Err = o.Err
			return r
		}
		r.Thought = strings.TrimSpace(o.Text)
		return r
	})
}

// RequestSpeech asks for one spoken line. A failed or invalid response
// yields silence, with a canned thought keyed by the trigger so the agent
// still reacts internally; skipping speech is always safe. Cancellation
// stays fully silent.
func (s *DecisionService) RequestSpeech(actx AgentContext) {
	if s.provider == nil {
		s.results <- Result{
			AgentID: actx.AgentID, Kind: RequestSpeech, Trigger: actx.Trigger,
			Speech: canned(fallbackSpeech[actx.Trigger.Kind], int(NowMillis())),
		}
		return
	}
	prompts := buildSpeechPrompt(actx)
	s.dispatch(actx, RequestSpeech, prompts, func(o Outcome, trace *TraceEvent) Result {
		r := Result{AgentID: actx.AgentID, Kind: RequestSpeech, Trigger: actx.Trigger, Trace: trace}
		if o.Err != nil {
			r.Err = o.Err
			if !errors.Is(o.Err, ErrCancelled) {
				r.Thought = fallbackThought(actx.Trigger.Kind, int(NowMillis()))
			}
			return r
		}
		r.Speech = s.validateSpeech(actx, o.Text)
		return r
	})
}

// RequestReply asks for the next line in an ongoing conversation. On an
// endpoint failure a canned line keyed by the conversation topic keeps the
// dialogue alive instead of stalling it; a timed-out or cancelled request
// stays silent and the conversation winds down through its inactivity
// window.
func (s *DecisionService) RequestReply(actx AgentContext, conv *Conversation) {
	convID := conv.ID
	topic := conv.Topic
	turns := make([]Turn, len(conv.Turns))
	copy(turns, conv.Turns)

	if s.provider == nil {
		s.results <- Result{
			AgentID: actx.AgentID, Kind: RequestReply, ConversationID: convID,
			Speech: canned(topicReplies[topic], int(NowMillis())),
		}
		return
	}
	prompts := buildReplyPrompt(actx, turns)
	s.dispatch(actx, RequestReply, prompts, func(o Outcome, trace *TraceEvent) Result {
		r := Result{AgentID: actx.AgentID, Kind: RequestReply, ConversationID: convID, Trace: trace}
		if o.Err != nil {
			r.Err = o.Err
			if !errors.Is(o.Err, ErrTimeout) && !errors.Is(o.Err, ErrCancelled) {
				r.Speech = canned(topicReplies[topic], int(NowMillis()))
			}
			return r
		}
		if text := s.validateSpeech(actx, o.Text); text != "" {
			r.Speech = text
		} else {
			r.Speech = canned(topicReplies[topic], int(NowMillis()))
		}
		return r
	})
}

// RequestDecision asks for the agent's next goal asynchronously. Failures
// resolve to the same fallback GetAgentDecision uses.
func (s *DecisionService) RequestDecision(actx AgentContext) {
	if s.provider == nil {
		d := fallbackDecision(actx)
		s.results <- Result{AgentID: actx.AgentID, Kind: RequestDecision, Trigger: actx.Trigger, Decision: &d}
		return
	}
	prompts := buildDecisionPrompt(actx)
	s.dispatch(actx, RequestDecision, prompts, func(o Outcome, trace *TraceEvent) Result {
		r := Result{AgentID: actx.AgentID, Kind: RequestDecision, Trigger: actx.Trigger, Trace: trace}
		d, err := s.resolveDecision(actx, o)
		if trace != nil && err == nil {
			trace.ParsedDecision = &d
		}
		r.Decision = &d
		r.Err = err
		return r
	})
}

// GetAgentDecision asks for the agent's next goal and blocks until it
// resolves or ctx is cancelled. It never returns an unusable decision: any
// failure falls back to the first incomplete task, or WANDER.
func (s *DecisionService) GetAgentDecision(ctx context.Context, actx AgentContext) Decision {
	if s.provider == nil {
		return fallbackDecision(actx)
	}
	prompts := buildDecisionPrompt(actx)
	fut := s.enqueue(actx, RequestDecision, prompts)
	o := fut.Wait(ctx)
	d, err := s.resolveDecision(actx, o)
	if err != nil {
		s.logger.Warn("decision fell back",
			"agent", actx.AgentName, "error", err, "goal", d.Goal)
	}
	return d
}

// resolveDecision parses an outcome into a decision, substituting the
// fallback on any failure.
func (s *DecisionService) resolveDecision(actx AgentContext, o Outcome) (Decision, error) {
	if o.Err != nil {
		return fallbackDecision(actx), o.Err
	}
	d, err := parseDecision(o.Text, actx)
	if err != nil {
		return fallbackDecision(actx), err
	}
	return d, nil
}

// dispatch enqueues the request and joins its outcome on a goroutine,
// pushing the built Result onto the results channel.
func (s *DecisionService) dispatch(actx AgentContext, kind string, prompts []ChatMessage, build func(Outcome, *TraceEvent) Result) {
	fut := s.enqueue(actx, kind, prompts)
	go func() {
		start := time.Now()
		o := <-fut.Done()
		trace := &TraceEvent{
			AgentID:        actx.AgentID,
			AgentName:      actx.AgentName,
			RequestType:    kind,
			Prompts:        prompts,
			RawResponse:    o.Text,
			Context:        describeTrigger(actx.Trigger),
			AgentPositions: actx.AgentPositions,
			Tokens:         o.Usage,
			DurationMs:     time.Since(start).Milliseconds(),
			Success:        o.Err == nil,
			Timestamp:      NowMillis(),
		}
		s.results <- build(o, trace)
	}()
}

// enqueue wraps the provider call in a queue task with a tracing span.
func (s *DecisionService) enqueue(actx AgentContext, kind string, prompts []ChatMessage) *Future {
	return s.queue.Enqueue(func(ctx context.Context) (string, Usage, error) {
		ctx, span := s.tracer.Start(ctx, "reasoning."+kind,
			StringAttr("agent.id", actx.AgentID),
			StringAttr("agent.name", actx.AgentName),
			StringAttr("provider", s.provider.Name()))
		defer span.End()

		resp, err := s.provider.Chat(ctx, ChatRequest{
			Messages:    prompts,
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		})
		if err != nil {
			span.Error(err)
			return "", Usage{}, err
		}
		s.queue.RecordTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		span.SetAttr(
			IntAttr("tokens.prompt", resp.Usage.PromptTokens),
			IntAttr("tokens.completion", resp.Usage.CompletionTokens))
		return resp.Content, resp.Usage, nil
	}, s.timeout)
}

// validateSpeech normalizes a spoken line: third-person self references
// are rewritten to first person, unknown agent names are logged but let
// through, and an empty line stays empty (the agent simply stays quiet).
func (s *DecisionService) validateSpeech(actx AgentContext, raw string) string {
	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if text == "" {
		return ""
	}

	// "Red thinks..." from Red itself reads as broken roleplay.
	if strings.Contains(text, actx.AgentName) {
		text = rewriteSelfReference(text, actx.AgentName)
	}

	known := make(map[string]bool, len(actx.KnownNames))
	for _, n := range actx.KnownNames {
		known[strings.ToLower(n)] = true
	}
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(strings.Trim(w, ".,!?\"'"))
		if isColorWord(w) && !known[w] {
			s.logger.Warn("speech mentions unknown agent",
				"agent", actx.AgentName, "mentioned", w)
		}
	}
	return text
}

// rewriteSelfReference replaces the speaker's own name with a pronoun.
func rewriteSelfReference(text, name string) string {
	text = strings.ReplaceAll(text, name+"'s", "my")
	text = strings.ReplaceAll(text, name+" is", "I am")
	return strings.ReplaceAll(text, name, "I")
}

// colorWords is the palette agents are named from.
var colorWords = map[string]bool{
	"red": true, "blue": true, "green": true, "yellow": true,
	"orange": true, "purple": true, "pink": true, "cyan": true,
	"lime": true, "brown": true, "white": true, "black": true,
}

func isColorWord(w string) bool { return colorWords[w] }

// --- response parsing ---

var (
	goalPattern      = regexp.MustCompile(`(?mi)^\s*GOAL:\s*([A-Z_]+)`)
	targetPattern    = regexp.MustCompile(`(?mi)^\s*TARGET:\s*(.+?)\s*$`)
	reasoningPattern = regexp.MustCompile(`(?mi)^\s*REASONING:\s*(.+?)\s*$`)
	thoughtPattern   = regexp.MustCompile(`(?mi)^\s*THOUGHT:\s*(.+?)\s*$`)
)

// validGoals maps parseable goal words to their type, per role.
func validGoal(word string, role Role) (GoalType, bool) {
	g := GoalType(strings.ToUpper(word))
	switch g {
	case GoalGoToTask, GoalWander, GoalFollowAgent, GoalAvoidAgent, GoalIdle, GoalSpeak:
		return g, true
	case GoalKill, GoalHunt:
		return g, role == RoleImpostor
	}
	return "", false
}

// parseDecision extracts the GOAL/TARGET/REASONING/THOUGHT block from a raw
// response. Targets resolve against the agent's visible set (agent names)
// or its task list (1-based numbers).
func parseDecision(raw string, actx AgentContext) (Decision, error) {
	d := Decision{TargetTaskIndex: -1}

	gm := goalPattern.FindStringSubmatch(raw)
	if gm == nil {
		return d, &ErrParse{Raw: raw}
	}
	goal, ok := validGoal(gm[1], actx.Role)
	if !ok {
		return d, &ErrParse{Raw: raw}
	}
	d.Goal = goal

	if m := reasoningPattern.FindStringSubmatch(raw); m != nil {
		d.Reasoning = m[1]
	}
	if m := thoughtPattern.FindStringSubmatch(raw); m != nil {
		d.Thought = m[1]
	}

	target := ""
	if m := targetPattern.FindStringSubmatch(raw); m != nil {
		target = m[1]
	}
	if err := resolveTarget(&d, target, actx); err != nil {
		return d, err
	}
	return d, nil
}

// resolveTarget fills TargetAgentID or TargetTaskIndex from the TARGET
// line, and rejects goals whose required target cannot be resolved.
func resolveTarget(d *Decision, target string, actx AgentContext) error {
	t := strings.TrimSpace(target)
	if !strings.EqualFold(t, "none") && t != "" {
		if n, err := strconv.Atoi(t); err == nil {
			if n >= 1 && n <= len(actx.Tasks) {
				d.TargetTaskIndex = n - 1
			}
		} else {
			for _, v := range actx.Visible {
				if strings.EqualFold(v.Name, t) {
					d.TargetAgentID = v.ID
					break
				}
			}
		}
	}

	switch d.Goal {
	case GoalFollowAgent, GoalAvoidAgent, GoalSpeak, GoalKill, GoalHunt:
		if d.TargetAgentID == "" {
			return &ErrParse{Raw: "goal " + string(d.Goal) + " with unresolvable target " + t}
		}
	case GoalGoToTask:
		if d.TargetTaskIndex < 0 {
			// Unnumbered or missing task target: first incomplete.
			for i, task := range actx.Tasks {
				if !task.IsCompleted {
					d.TargetTaskIndex = i
					break
				}
			}
			if d.TargetTaskIndex < 0 {
				return &ErrParse{Raw: "GO_TO_TASK with no incomplete task"}
			}
		}
	}
	return nil
}

// fallbackDecision is the deterministic default when reasoning is
// unavailable: work the first incomplete task, or wander.
func fallbackDecision(actx AgentContext) Decision {
	for i, t := range actx.Tasks {
		if !t.IsCompleted {
			return Decision{
				Goal:            GoalGoToTask,
				TargetTaskIndex: i,
				Reasoning:       "fallback: continue assigned tasks",
			}
		}
	}
	return Decision{
		Goal:            GoalWander,
		TargetTaskIndex: -1,
		Reasoning:       "fallback: all tasks complete",
	}
}

// canned picks a static line deterministically from the draw value.
func canned(list []string, draw int) string {
	if len(list) == 0 {
		return ""
	}
	if draw < 0 {
		draw = -draw
	}
	return list[draw%len(list)]
}
