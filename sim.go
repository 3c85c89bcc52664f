package crewsim

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"crewsim/geo"
	"crewsim/nav"
)

// Agent name palette with Among-the-crew colors.
var palette = []struct {
	name  string
	color int
}{
	{"Red", 0xC51111},
	{"Blue", 0x132ED1},
	{"Green", 0x117F2D},
	{"Pink", 0xED54BA},
	{"Orange", 0xEF7D0D},
	{"Yellow", 0xF5F557},
	{"Black", 0x3F474E},
	{"White", 0xD6E0F0},
	{"Purple", 0x6B2FBB},
	{"Brown", 0x71491E},
	{"Cyan", 0x38FEDC},
	{"Lime", 0x50EF39},
}

// taskCatalog is the pool tasks are drawn from. Rooms must exist as
// labeled zones on the active map.
var taskCatalog = []struct {
	taskType string
	room     string
}{
	{"fix wiring", "Cafeteria"},
	{"empty garbage", "Cafeteria"},
	{"download data", "Weapons"},
	{"calibrate targeting", "Weapons"},
	{"chart course", "Navigation"},
	{"stabilize steering", "Navigation"},
	{"divert power", "Reactor"},
	{"start reactor", "Reactor"},
}

const (
	tasksPerAgent = 3
	dtClampMax    = 0.25 // s, protects integration across stalls
	planRetryMs   = 250  // pathfinding retry cadence
	followPlanMs  = 1000 // follow/hunt replan cadence
	recentRingCap = 20   // thoughts/speech carried on snapshots
)

// SimOption configures a Simulation.
type SimOption func(*Simulation)

// WithMap sets the world geometry. Default: the built-in four-room map.
func WithMap(m *geo.Map) SimOption {
	return func(s *Simulation) { s.world = m }
}

// WithProvider sets the reasoning endpoint. A nil provider (the default)
// runs headless on the static fallback tables.
func WithProvider(p Provider) SimOption {
	return func(s *Simulation) { s.provider = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) SimOption {
	return func(s *Simulation) { s.logger = l }
}

// WithTracer sets the tracer passed to the decision service.
func WithTracer(t Tracer) SimOption {
	return func(s *Simulation) { s.tracer = t }
}

// Simulation owns the world: agents, geometry, pathfinding, triggers, the
// reasoning pipeline, and conversations. All agent state is mutated only
// on the tick goroutine; reasoning results cross back in via the decision
// service's results channel.
type Simulation struct {
	cfg    Config
	world  *geo.Map
	mesh   *nav.Mesh
	rng    *rand.Rand
	logger *slog.Logger
	tracer Tracer

	provider  Provider
	queue     *Queue
	decisions *DecisionService

	agents []*Agent
	byID   map[string]*Agent

	movement   *MovementController
	perception *Perception
	triggers   *TriggerEngine
	convs      *Conversations

	tick     int64
	lastPlan map[string]int64 // agent id -> last pathfinding attempt (ms)

	recentThoughts []ThoughtEvent
	recentSpeech   []SpeechEvent

	snapshots chan *Snapshot
	traces    chan TraceEvent

	cancel context.CancelFunc
}

// NewSimulation builds a simulation. Call Start to run it.
func NewSimulation(cfg Config, opts ...SimOption) *Simulation {
	cfg = cfg.withDefaults()
	s := &Simulation{
		cfg:       cfg,
		logger:    nopLogger,
		tracer:    nopTracer{},
		byID:      make(map[string]*Agent),
		lastPlan:  make(map[string]int64),
		snapshots: make(chan *Snapshot, 8),
		traces:    make(chan TraceEvent, 64),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.world == nil {
		s.world = geo.DefaultMap()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(seed))

	s.mesh = nav.BuildMesh(s.world)
	s.movement = NewMovementController(s.world)
	s.perception = NewPerception(s.world, cfg.SpeechRange)

	tcfg := DefaultTriggerConfig()
	tcfg.BaseThoughtCooldown = cfg.BaseThoughtCooldown
	tcfg.BaseSpeechCooldown = cfg.BaseSpeechCooldown
	tcfg.RandomThoughtIntervalMin = cfg.RandomThoughtIntervalMin
	tcfg.RandomThoughtIntervalMax = cfg.RandomThoughtIntervalMax
	tcfg.ClosePassDistance = cfg.ClosePassDistance
	s.triggers = NewTriggerEngine(tcfg, s.rng)

	s.convs = NewConversations(s.rng, s.logger)

	s.queue = NewQueue(
		WithQueueLogger(s.logger),
		WithDefaultTimeout(cfg.ReasoningTimeout))
	s.decisions = NewDecisionService(s.provider, s.queue,
		WithDecisionLogger(s.logger),
		WithDecisionTracer(s.tracer),
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
		WithRequestTimeout(cfg.ReasoningTimeout))

	s.spawnAgents(seed)
	return s
}

// Snapshots delivers one snapshot per tick. Slow consumers lose the
// oldest frames, never the newest.
func (s *Simulation) Snapshots() <-chan *Snapshot { return s.snapshots }

// Traces delivers reasoning trace events as they resolve.
func (s *Simulation) Traces() <-chan TraceEvent { return s.traces }

// Queue exposes the reasoning queue for stats readers.
func (s *Simulation) Queue() *Queue { return s.queue }

// Agents returns the live agent slice. Safe only from the tick goroutine
// or before Start; external readers use Snapshots.
func (s *Simulation) Agents() []*Agent { return s.agents }

// spawnAgents creates the crew: palette names, one random impostor, tasks
// drawn from the catalog, spawn positions fanned around the first room.
func (s *Simulation) spawnAgents(seed int64) {
	n := s.cfg.NumAgents
	if n > len(palette) {
		n = len(palette)
	}
	order := s.rng.Perm(len(palette))[:n]
	impostor := s.rng.Intn(n)

	spawnZone := s.world.LabeledZones[0]
	center := spawnZone.Polygon.Centroid()
	now := NowMillis()

	for i, pi := range order {
		p := palette[pi]
		a := &Agent{
			ID:                NewID(),
			Name:              p.name,
			Color:             p.color,
			Role:              RoleCrewmate,
			Position:          s.spawnPoint(center, i),
			Activity:          StateIdle,
			CurrentTaskIndex:  -1,
			VisionRadius:      s.cfg.VisionRadius,
			ActionRadius:      s.cfg.ActionRadius,
			PreviouslyVisible: map[string]bool{},
		}
		if i == impostor {
			a.Role = RoleImpostor
		}
		a.AssignedTasks = s.assignTasks()
		s.triggers.InitClocks(a, now)
		s.agents = append(s.agents, a)
		s.byID[a.ID] = a
	}
	s.logger.Info("crew spawned", "agents", n, "seed", seed)
}

// spawnPoint fans agents around the spawn center, falling back to the
// center itself if the offset lands in a wall.
func (s *Simulation) spawnPoint(center geo.Point, i int) geo.Point {
	offsets := []geo.Point{
		{X: 0, Y: 0}, {X: 40, Y: 0}, {X: -40, Y: 0}, {X: 0, Y: 40},
		{X: 0, Y: -40}, {X: 40, Y: 40}, {X: -40, Y: -40}, {X: 40, Y: -40},
		{X: -40, Y: 40}, {X: 80, Y: 0}, {X: -80, Y: 0}, {X: 0, Y: 80},
	}
	p := center.Add(offsets[i%len(offsets)])
	if s.world.Walkable(p) {
		return p
	}
	return center
}

// assignTasks draws tasksPerAgent distinct catalog entries and pins each
// at a walkable point near its room's centroid.
func (s *Simulation) assignTasks() []Task {
	perm := s.rng.Perm(len(taskCatalog))
	var tasks []Task
	for _, ci := range perm {
		if len(tasks) == tasksPerAgent {
			break
		}
		c := taskCatalog[ci]
		zone := s.world.Zone(c.room)
		if zone == nil {
			continue
		}
		pos := zone.Polygon.Centroid()
		jit := geo.Point{X: float64(s.rng.Intn(81) - 40), Y: float64(s.rng.Intn(81) - 40)}
		if s.world.Walkable(pos.Add(jit)) {
			pos = pos.Add(jit)
		}
		tasks = append(tasks, Task{
			TaskType: c.taskType,
			Room:     c.room,
			Position: pos,
			Duration: 3000 + s.rng.Int63n(5001),
		})
	}
	return tasks
}

// Start runs the fixed-rate tick loop and the queue worker until ctx is
// cancelled.
func (s *Simulation) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.queue.Run(ctx)

	interval := time.Second / time.Duration(s.cfg.TickHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("simulation started", "tickHz", s.cfg.TickHz, "headless", s.decisions.Headless())

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulation stopped", "ticks", s.tick)
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt > dtClampMax {
				dt = dtClampMax
			}
			s.step(dt)
		}
	}
}

// Stop cancels the loop and discards queued reasoning work.
func (s *Simulation) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Clear()
}

// step advances the world by dt seconds: join reasoning results, advance
// physics and tasks, run perception and triggers, execute goals, publish
// the snapshot.
func (s *Simulation) step(dt float64) {
	s.tick++
	now := NowMillis()

	s.drainResults(now)

	for _, a := range s.agents {
		if !a.Alive() {
			continue
		}
		a.updateTask(now, s.logger)
		res := s.movement.Update(a, dt)
		if res.Arrived {
			a.Stop("arrived", s.logger)
			a.pendingTriggers = append(a.pendingTriggers, Trigger{Kind: TriggerArrived})
		}
		if res.Stuck {
			// Drop the path; goal execution replans from here.
			a.Stop("stuck", s.logger)
			a.stuck = false
			s.lastPlan[a.ID] = 0
		}
	}

	for _, a := range s.agents {
		if a.Alive() {
			s.perception.Update(a, s.agents)
		}
	}

	coeff := s.queue.ThinkingCoefficient()
	for _, a := range s.agents {
		if !a.Alive() {
			continue
		}
		s.reason(a, coeff, now)
	}

	for _, a := range s.agents {
		if a.Alive() {
			s.executeGoal(a, now)
			a.checkInvariants(s.logger)
		}
	}

	s.convs.TickCleanup(now)
	s.publish(now)
}

// reason runs the trigger pipeline for one agent: pending conversation
// replies first, then detected triggers gated by cooldowns scaled with
// the queue's thinking coefficient.
func (s *Simulation) reason(a *Agent, coeff float64, now int64) {
	// A reply owed in an active conversation outranks everything.
	if a.Reply != nil && !a.IsThinking {
		conv := s.convs.GetActiveFor(a.ID)
		if conv == nil || conv.ID != a.Reply.ConversationID {
			a.Reply = nil
		} else {
			actx := s.contextFor(a)
			a.Reply = nil
			a.IsThinking = true
			s.decisions.RequestReply(actx, conv)
			return
		}
	}

	trigs := s.triggers.Detect(a, now, s.byID)
	if len(trigs) == 0 {
		return
	}
	top := trigs[0]
	think, speak := s.triggers.Gate(a, top, coeff, now)

	actx := s.contextFor(a)
	actx.Trigger = top

	if speak && !a.IsThinking {
		a.IsThinking = true
		a.LastSpeechTime = now
		s.decisions.RequestSpeech(actx)
		return
	}
	if think && !a.IsThinking {
		a.IsThinking = true
		a.LastThoughtTime = now
		if a.CurrentGoal == "" && a.Activity == StateIdle {
			s.decisions.RequestDecision(actx)
		} else {
			s.decisions.RequestThought(actx)
		}
	}
}

// contextFor snapshots one agent's situation for prompt building.
func (s *Simulation) contextFor(a *Agent) AgentContext {
	actx := AgentContext{
		AgentID:          a.ID,
		AgentName:        a.Name,
		Role:             a.Role,
		Zone:             a.CurrentZone,
		Position:         a.Position,
		CanSpeakTo:       append([]string(nil), a.CanSpeakTo...),
		Tasks:            append([]Task(nil), a.AssignedTasks...),
		CurrentTaskIndex: a.CurrentTaskIndex,
		RecentEvents:     append([]string(nil), a.RecentEvents...),
		AgentPositions:   make(map[string]geo.Point, len(s.agents)),
	}
	for _, id := range a.VisibleAgents {
		if b, ok := s.byID[id]; ok {
			actx.Visible = append(actx.Visible, VisibleAgent{
				ID: b.ID, Name: b.Name, Distance: a.Position.Dist(b.Position),
			})
		}
	}
	for _, b := range s.agents {
		actx.KnownNames = append(actx.KnownNames, b.Name)
		actx.AgentPositions[b.Name] = b.Position
	}
	return actx
}

// drainResults joins every reasoning result that resolved since the last
// tick and applies it to its agent.
func (s *Simulation) drainResults(now int64) {
	for {
		select {
		case r := <-s.decisions.Results():
			s.apply(r, now)
		default:
			return
		}
	}
}

// apply folds one resolved reasoning result back into agent state.
func (s *Simulation) apply(r Result, now int64) {
	if r.Trace != nil {
		select {
		case s.traces <- *r.Trace:
		default:
		}
	}
	a, ok := s.byID[r.AgentID]
	if !ok {
		return
	}
	a.IsThinking = false
	if !a.Alive() {
		return
	}

	switch r.Kind {
	case RequestThought:
		if r.Thought != "" {
			s.recordThought(a, r.Thought, now)
		}
	case RequestSpeech:
		if r.Speech != "" {
			s.speak(a, r.Speech, "", now)
		} else if r.Thought != "" {
			// Failed speech stays silent but still lands as a thought.
			s.recordThought(a, r.Thought, now)
		}
	case RequestReply:
		if r.Speech != "" {
			s.speak(a, r.Speech, r.ConversationID, now)
		}
	case RequestDecision:
		if r.Decision != nil {
			s.applyDecision(a, *r.Decision, now)
		}
	}
}

func (s *Simulation) recordThought(a *Agent, text string, now int64) {
	a.CurrentThought = text
	s.recentThoughts = append(s.recentThoughts, ThoughtEvent{
		AgentID: a.ID, AgentName: a.Name, Text: text, Timestamp: now,
	})
	if len(s.recentThoughts) > recentRingCap {
		s.recentThoughts = s.recentThoughts[len(s.recentThoughts)-recentRingCap:]
	}
}

// speak publishes an utterance: records it, routes it into its
// conversation (starting one with the nearest hearer when convID is
// empty), and raises heard_speech for bystanders in range.
func (s *Simulation) speak(a *Agent, text, convID string, now int64) {
	a.LastSpeech = text
	a.RecordEvent("said: " + text)
	s.recentSpeech = append(s.recentSpeech, SpeechEvent{
		AgentID: a.ID, AgentName: a.Name, Text: text, Timestamp: now,
	})
	if len(s.recentSpeech) > recentRingCap {
		s.recentSpeech = s.recentSpeech[len(s.recentSpeech)-recentRingCap:]
	}

	var conv *Conversation
	if convID != "" {
		if err := s.convs.AddReply(convID, a.ID, a.Name, text, now); err != nil {
			s.logger.Debug("reply dropped", "agent", a.Name, "error", err)
		} else if c := s.convs.GetActiveFor(a.ID); c != nil && c.ID == convID {
			conv = c
		}
	} else if partner := s.nearestHearer(a); partner != nil {
		conv = s.convs.Start(a.ID, a.Name, partner.ID, partner.Name, text, now)
	}

	// The conversation partner owes the next line.
	if conv != nil && conv.IsActive {
		pid, _ := conv.OtherParticipant(a.ID)
		if partner, ok := s.byID[pid]; ok && partner.Alive() {
			partner.Reply = &PendingReply{
				ConversationID: conv.ID,
				SpeakerID:      a.ID,
				SpeakerName:    a.Name,
				Message:        text,
				Zone:           a.CurrentZone,
				Timestamp:      now,
			}
			partner.Conversation = conv.ID
			a.Conversation = conv.ID
		}
	}
	if conv == nil || !conv.IsActive {
		a.Conversation = ""
	}

	// Everyone else in earshot hears it as a trigger.
	for _, b := range s.agents {
		if b.ID == a.ID || !b.Alive() {
			continue
		}
		if conv != nil && conv.Involves(b.ID) {
			continue
		}
		if a.Position.Dist(b.Position) <= s.cfg.SpeechRange && s.world.SegmentWalkable(a.Position, b.Position) {
			b.pendingTriggers = append(b.pendingTriggers, Trigger{
				Kind: TriggerHeardSpeech, OtherID: a.ID, OtherName: a.Name, Detail: text,
			})
			b.RecordEvent("heard " + a.Name + " say: " + text)
		}
	}
}

// nearestHearer picks the closest living agent within speech range and
// line of sight, or nil.
func (s *Simulation) nearestHearer(a *Agent) *Agent {
	var best *Agent
	bestDist := s.cfg.SpeechRange + 1
	for _, b := range s.agents {
		if b.ID == a.ID || !b.Alive() {
			continue
		}
		d := a.Position.Dist(b.Position)
		if d <= s.cfg.SpeechRange && d < bestDist && s.world.SegmentWalkable(a.Position, b.Position) {
			best, bestDist = b, d
		}
	}
	return best
}

// applyDecision installs a parsed decision as the agent's current goal.
func (s *Simulation) applyDecision(a *Agent, d Decision, now int64) {
	if d.Thought != "" {
		s.recordThought(a, d.Thought, now)
	}
	a.CurrentGoal = d.Goal
	a.TargetAgentID = d.TargetAgentID
	if d.Goal == GoalGoToTask && d.TargetTaskIndex >= 0 && d.TargetTaskIndex < len(a.AssignedTasks) {
		a.CurrentTaskIndex = d.TargetTaskIndex
	}
	s.lastPlan[a.ID] = 0
	s.logger.Debug("goal selected",
		"agent", a.Name, "goal", d.Goal, "reasoning", d.Reasoning)
}

// executeGoal advances the agent's current goal by one tick.
func (s *Simulation) executeGoal(a *Agent, now int64) {
	switch a.CurrentGoal {
	case GoalGoToTask:
		s.execGoToTask(a, now)
	case GoalWander:
		s.execWander(a, now)
	case GoalFollowAgent:
		s.execApproach(a, now, false)
	case GoalHunt:
		s.execApproach(a, now, false)
	case GoalAvoidAgent:
		s.execAvoid(a, now)
	case GoalSpeak:
		s.execSpeak(a, now)
	case GoalKill:
		s.execApproach(a, now, true)
	case GoalIdle:
		a.Stop("idle goal", s.logger)
		a.CurrentGoal = ""
	}
}

func (s *Simulation) clearGoal(a *Agent) {
	a.CurrentGoal = ""
	a.TargetAgentID = ""
}

func (s *Simulation) execGoToTask(a *Agent, now int64) {
	if a.Activity == StateDoingTask || a.Activity == StateWalking {
		return
	}
	task := a.CurrentTask()
	if task == nil || task.IsCompleted {
		if idx := a.FirstIncompleteTask(); idx >= 0 {
			a.CurrentTaskIndex = idx
			task = a.CurrentTask()
		} else {
			s.clearGoal(a)
			return
		}
	}
	if a.Position.Dist(task.Position) <= a.ActionRadius {
		if err := a.StartTask(a.CurrentTaskIndex, now, s.logger); err != nil {
			s.logger.Warn("task start failed", "agent", a.Name, "error", err)
			s.clearGoal(a)
		} else {
			s.clearGoal(a)
			a.CurrentGoal = GoalGoToTask // resume task chain after this one
		}
		return
	}
	s.planPathTo(a, task.Position, now, "task: "+task.TaskType)
}

func (s *Simulation) execWander(a *Agent, now int64) {
	if a.Activity == StateWalking {
		return
	}
	if a.Activity == StateIdle && len(a.Path) == 0 && s.lastPlan[a.ID] != 0 {
		// Arrived (or gave up) since the last plan: wander is done.
		s.clearGoal(a)
		return
	}
	dest := s.randomDestination(a)
	s.planPathTo(a, dest, now, "wander")
}

// execApproach walks toward the target agent, replanning on a cadence.
// With kill set, closing to action radius downs the target.
func (s *Simulation) execApproach(a *Agent, now int64, kill bool) {
	target, ok := s.byID[a.TargetAgentID]
	if !ok || !target.Alive() {
		s.clearGoal(a)
		return
	}
	if kill && a.Position.Dist(target.Position) <= a.ActionRadius {
		target.Kill("killed by "+a.Name, s.logger)
		a.RecordEvent("eliminated " + target.Name)
		a.Stop("kill resolved", s.logger)
		s.clearGoal(a)
		s.logger.Info("agent killed", "victim", target.Name, "by", a.Name)
		return
	}
	if now-s.lastPlan[a.ID] < followPlanMs && a.Activity == StateWalking {
		return
	}
	s.planPathTo(a, target.Position, now, "approach "+target.Name)
}

// execAvoid heads for the labeled zone centroid farthest from the target.
func (s *Simulation) execAvoid(a *Agent, now int64) {
	target, ok := s.byID[a.TargetAgentID]
	if !ok || !target.Alive() {
		s.clearGoal(a)
		return
	}
	if a.Activity == StateWalking {
		return
	}
	if len(a.Path) == 0 && s.lastPlan[a.ID] != 0 && a.Activity == StateIdle {
		s.clearGoal(a)
		return
	}
	var dest geo.Point
	bestDist := -1.0
	for _, z := range s.world.LabeledZones {
		c := z.Polygon.Centroid()
		if d := c.Dist(target.Position); d > bestDist {
			dest, bestDist = c, d
		}
	}
	s.planPathTo(a, dest, now, "avoid "+target.Name)
}

// execSpeak closes to speech range and opens with a speech request.
func (s *Simulation) execSpeak(a *Agent, now int64) {
	target, ok := s.byID[a.TargetAgentID]
	if !ok || !target.Alive() {
		s.clearGoal(a)
		return
	}
	if a.Position.Dist(target.Position) <= s.cfg.SpeechRange &&
		s.world.SegmentWalkable(a.Position, target.Position) {
		a.Stop("within speech range", s.logger)
		s.clearGoal(a)
		if !a.IsThinking {
			actx := s.contextFor(a)
			actx.Trigger = Trigger{Kind: TriggerAgentSpotted, OtherID: target.ID, OtherName: target.Name}
			a.IsThinking = true
			a.LastSpeechTime = now
			s.decisions.RequestSpeech(actx)
		}
		return
	}
	if now-s.lastPlan[a.ID] < followPlanMs && a.Activity == StateWalking {
		return
	}
	s.planPathTo(a, target.Position, now, "speak to "+target.Name)
}

// planPathTo finds and installs a smoothed path, rate-limited by the plan
// retry cadence so a blocked goal does not re-run A* every tick.
func (s *Simulation) planPathTo(a *Agent, dest geo.Point, now int64, reason string) {
	if now-s.lastPlan[a.ID] < planRetryMs {
		return
	}
	s.lastPlan[a.ID] = now

	path := s.mesh.FindPath(a.Position, dest)
	if !path.Success {
		s.logger.Debug("no path", "agent", a.Name, "reason", reason)
		return
	}
	smooth := nav.Smooth(path.Waypoints)
	if err := a.SetPath(smooth, reason, s.logger); err != nil {
		s.logger.Warn("path rejected", "agent", a.Name, "error", err)
	}
}

// randomDestination draws a walkable point near a random labeled zone's
// centroid.
func (s *Simulation) randomDestination(a *Agent) geo.Point {
	for i := 0; i < 8; i++ {
		z := s.world.LabeledZones[s.rng.Intn(len(s.world.LabeledZones))]
		c := z.Polygon.Centroid()
		jit := geo.Point{X: float64(s.rng.Intn(121) - 60), Y: float64(s.rng.Intn(121) - 60)}
		if p := c.Add(jit); s.world.Walkable(p) && p.Dist(a.Position) > arrivalRadius {
			return p
		}
	}
	return s.world.LabeledZones[s.rng.Intn(len(s.world.LabeledZones))].Polygon.Centroid()
}

// publish captures and emits this tick's snapshot, dropping the oldest
// queued frame when the consumer lags.
func (s *Simulation) publish(now int64) {
	snap := &Snapshot{
		Tick:       s.tick,
		Timestamp:  now,
		Agents:     make(map[string]AgentRecord, len(s.agents)),
		GamePhase:  "playing",
		QueueStats: s.queue.Stats(),
	}
	var done, total int
	for _, a := range s.agents {
		snap.Agents[a.ID] = CaptureAgent(a)
		if !a.Alive() {
			continue
		}
		for _, t := range a.AssignedTasks {
			total++
			if t.IsCompleted {
				done++
			}
		}
	}
	if total > 0 {
		snap.TaskProgress = float64(done) / float64(total)
	}
	if total > 0 && done == total {
		snap.GamePhase = "tasks_complete"
	}
	snap.RecentThoughts = append([]ThoughtEvent(nil), s.recentThoughts...)
	snap.RecentSpeech = append([]SpeechEvent(nil), s.recentSpeech...)

	for {
		select {
		case s.snapshots <- snap:
			return
		default:
			select {
			case <-s.snapshots:
			default:
			}
		}
	}
}
