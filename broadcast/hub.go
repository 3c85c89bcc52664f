// Package broadcast streams simulation state to websocket subscribers.
//
// Each subscriber gets a handshake, a full snapshot, then per-tick
// state-update deltas filtered to the facets it asked for. Slow
// subscribers lose intermediate deltas and are resynced with a fresh full
// snapshot rather than disconnected.
package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"crewsim"

	"github.com/gorilla/websocket"
)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Frame is the wire envelope for every message to a subscriber.
type Frame struct {
	Type      string `json:"type"` // handshake, snapshot, state-update, heartbeat, llm-trace, error
	Tick      int64  `json:"tick,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Handshake is the first frame's payload.
type Handshake struct {
	Protocol int      `json:"protocol"`
	TickHz   int      `json:"tickHz"`
	Facets   []string `json:"facets"`
}

const protocolVersion = 1

// Facet names subscribers can select with ?facets=a,b,c. Default: all.
var allFacets = []string{"summary", "movement", "aiState"}

const (
	// heartbeatInterval bounds the silence between frames; a subscriber
	// always hears from us at least this often.
	heartbeatInterval = 10 * time.Second
	// sendQueueCap bounds the per-subscriber outbound queue.
	sendQueueCap = 32
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the structured logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithTickHz sets the tick rate advertised in the handshake.
func WithTickHz(hz int) HubOption {
	return func(h *Hub) { h.tickHz = hz }
}

// Hub fans simulation snapshots out to websocket subscribers. Publish is
// called from the simulation's consumer goroutine; subscriber lifecycle
// runs on per-connection goroutines.
type Hub struct {
	logger *slog.Logger
	tickHz int

	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	last     *crewsim.Snapshot
	lastSent time.Time
}

// NewHub creates a hub. Call Run to drive heartbeats.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		logger: nopLogger,
		tickHz: crewsim.DefaultTickHz,
		subs:   make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run emits heartbeat frames whenever the stream has been silent for the
// heartbeat interval, until done closes.
func (h *Hub) Run(done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			h.closeAll()
			return
		case <-ticker.C:
			h.mu.Lock()
			stale := time.Since(h.lastSent) >= heartbeatInterval
			var tick int64
			if h.last != nil {
				tick = h.last.Tick
			}
			if stale {
				h.lastSent = time.Now()
			}
			subs := h.snapshotSubs()
			h.mu.Unlock()

			if !stale {
				continue
			}
			frame := Frame{Type: "heartbeat", Tick: tick, Timestamp: time.Now().UnixMilli()}
			for _, sub := range subs {
				sub.enqueue(frame)
			}
		}
	}
}

// Publish diffs the snapshot against the previous one and sends each
// subscriber a state-update (or a full snapshot if it fell behind).
func (h *Hub) Publish(snap *crewsim.Snapshot) {
	h.mu.Lock()
	prev := h.last
	h.last = snap
	h.lastSent = time.Now()
	subs := h.snapshotSubs()
	h.mu.Unlock()

	var delta crewsim.Delta
	if prev != nil {
		delta = crewsim.DiffSnapshots(prev, snap)
	}

	for _, sub := range subs {
		if prev == nil || sub.takeResync() {
			sub.enqueue(Frame{
				Type: "snapshot", Tick: snap.Tick, Timestamp: snap.Timestamp,
				Data: filterSnapshot(snap, sub.facets),
			})
			continue
		}
		sub.enqueue(Frame{
			Type: "state-update", Tick: delta.Tick, Timestamp: delta.Timestamp,
			Data: filterDelta(delta, sub.facets),
		})
	}
}

// PublishTrace forwards a reasoning trace to every subscriber.
func (h *Hub) PublishTrace(ev crewsim.TraceEvent) {
	h.mu.Lock()
	subs := h.snapshotSubs()
	h.mu.Unlock()
	frame := Frame{Type: "llm-trace", Timestamp: ev.Timestamp, Data: ev}
	for _, sub := range subs {
		sub.enqueue(frame)
	}
}

// SubscriberCount reports the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The hub serves same-origin dashboards and local tools.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request and attaches a subscriber: handshake,
// current snapshot, then the delta stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	facets := parseFacets(r.URL.Query().Get("facets"))
	sub := newSubscriber(conn, facets, h.logger)

	// Handshake and initial snapshot go onto the send queue before the
	// subscriber becomes visible to Publish, all under one lock, so no
	// delta can slip in ahead of them.
	h.mu.Lock()
	sub.enqueue(Frame{
		Type:      "handshake",
		Timestamp: time.Now().UnixMilli(),
		Data:      Handshake{Protocol: protocolVersion, TickHz: h.tickHz, Facets: facetNames(facets)},
	})
	if h.last != nil {
		sub.enqueue(Frame{
			Type: "snapshot", Tick: h.last.Tick, Timestamp: h.last.Timestamp,
			Data: filterSnapshot(h.last, facets),
		})
	}
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Info("subscriber connected", "remote", r.RemoteAddr, "subscribers", n)

	go sub.writePump()
	sub.readPump() // blocks until the peer goes away

	h.mu.Lock()
	delete(h.subs, sub)
	n = len(h.subs)
	h.mu.Unlock()
	sub.close()
	h.logger.Info("subscriber disconnected", "remote", r.RemoteAddr, "subscribers", n)
}

// snapshotSubs copies the subscriber set under mu.
func (h *Hub) snapshotSubs() []*subscriber {
	out := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		out = append(out, sub)
	}
	return out
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := h.snapshotSubs()
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// parseFacets reads the comma-separated facet selection; empty means all.
func parseFacets(q string) map[string]bool {
	facets := make(map[string]bool, len(allFacets))
	if q == "" {
		for _, f := range allFacets {
			facets[f] = true
		}
		return facets
	}
	for _, f := range strings.Split(q, ",") {
		f = strings.TrimSpace(f)
		for _, known := range allFacets {
			if f == known {
				facets[f] = true
			}
		}
	}
	// An unrecognized selection falls back to everything rather than a
	// silent empty stream.
	if len(facets) == 0 {
		for _, f := range allFacets {
			facets[f] = true
		}
	}
	return facets
}

func facetNames(facets map[string]bool) []string {
	out := make([]string, 0, len(facets))
	for _, f := range allFacets {
		if facets[f] {
			out = append(out, f)
		}
	}
	return out
}

// filterSnapshot strips unselected facets from each agent record.
func filterSnapshot(snap *crewsim.Snapshot, facets map[string]bool) *crewsim.Snapshot {
	if facets["summary"] && facets["movement"] && facets["aiState"] {
		return snap
	}
	out := *snap
	out.Agents = make(map[string]crewsim.AgentRecord, len(snap.Agents))
	for id, rec := range snap.Agents {
		if !facets["summary"] {
			rec.Summary = crewsim.AgentSummary{ID: rec.Summary.ID}
		}
		if !facets["movement"] {
			rec.Movement = crewsim.AgentMovement{}
		}
		if !facets["aiState"] {
			rec.AIState = crewsim.AgentAIState{}
		}
		out.Agents[id] = rec
	}
	return &out
}

// filterDelta strips unselected facets from each agent delta, dropping
// agents whose remaining facets are unchanged.
func filterDelta(d crewsim.Delta, facets map[string]bool) crewsim.Delta {
	if facets["summary"] && facets["movement"] && facets["aiState"] {
		return d
	}
	out := d
	out.Agents = nil
	for id, ad := range d.Agents {
		if !facets["summary"] {
			ad.SummaryChanged, ad.Summary = false, nil
		}
		if !facets["movement"] {
			ad.MovementChanged, ad.Movement = false, nil
		}
		if !facets["aiState"] {
			ad.AIStateChanged, ad.AIState = false, nil
		}
		if ad.SummaryChanged || ad.MovementChanged || ad.AIStateChanged {
			if out.Agents == nil {
				out.Agents = make(map[string]crewsim.AgentDelta)
			}
			out.Agents[id] = ad
		}
	}
	return out
}
