package crewsim

import (
	"context"
	"sync"
	"testing"
	"time"
)

// stubProvider returns scripted responses, optionally per call.
type stubProvider struct {
	mu    sync.Mutex
	fn    func(req ChatRequest) (ChatResponse, error)
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return ChatResponse{}, err
	}
	p.mu.Lock()
	p.calls++
	fn := p.fn
	p.mu.Unlock()
	if fn == nil {
		return ChatResponse{Content: "ok"}, nil
	}
	return fn(req)
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// runQueue starts a queue worker stopped at test cleanup.
func runQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("queue worker did not stop")
		}
	})
}

// newTestSim builds a deterministic headless simulation.
func newTestSim(t *testing.T, agents int) *Simulation {
	t.Helper()
	return NewSimulation(Config{NumAgents: agents, Seed: 7})
}

// testContext returns an AgentContext with two tasks and one visible agent.
func testContext() AgentContext {
	return AgentContext{
		AgentID:   "a1",
		AgentName: "Red",
		Role:      RoleCrewmate,
		Zone:      "Cafeteria",
		Visible: []VisibleAgent{
			{ID: "a2", Name: "Blue", Distance: 120},
		},
		CanSpeakTo: []string{"Blue"},
		KnownNames: []string{"Red", "Blue"},
		Tasks: []Task{
			{TaskType: "fix wiring", Room: "Cafeteria", IsCompleted: true},
			{TaskType: "download data", Room: "Weapons"},
		},
		CurrentTaskIndex: -1,
		Trigger:          Trigger{Kind: TriggerAgentSpotted, OtherID: "a2", OtherName: "Blue"},
	}
}
