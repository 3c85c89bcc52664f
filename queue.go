package crewsim

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

// TaskFunc performs one reasoning call. It must honor ctx cancellation;
// the queue derives ctx from the request deadline so an expired request
// aborts its in-flight HTTP call.
type TaskFunc func(ctx context.Context) (text string, usage Usage, err error)

// Outcome is the terminal resolution of a reasoning request: exactly one
// of a text or an error (ErrTimeout, ErrCancelled, or an endpoint error).
type Outcome struct {
	Text  string
	Usage Usage
	Err   error
}

// Future resolves with the outcome of an enqueued reasoning request.
type Future struct {
	ch chan Outcome
}

// Done returns a channel that receives the outcome exactly once.
func (f *Future) Done() <-chan Outcome { return f.ch }

// Wait blocks for the outcome or ctx cancellation.
func (f *Future) Wait(ctx context.Context) Outcome {
	select {
	case o := <-f.ch:
		return o
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	}
}

type request struct {
	fn       TaskFunc
	deadline time.Time
	future   *Future
}

// QueueStats is a point-in-time view of the dispatcher over its sliding
// 60-second window.
type QueueStats struct {
	QueueDepth      int     `json:"queueDepth"`
	InFlight        int     `json:"inFlight"`
	AvgLatencyMs    float64 `json:"avgLatencyMs"`
	TokensPerSecond float64 `json:"tokensPerSecond"`
	SuccessRate     float64 `json:"successRate"`
	FailureRate     float64 `json:"failureRate"`
}

// Thinking coefficient bounds.
const (
	MinThinkingCoefficient = 0.25
	MaxThinkingCoefficient = 2.0
)

// statsWindow is the sliding window over which rates are computed.
const statsWindow = time.Minute

type completionSample struct {
	at      time.Time
	latency time.Duration
	ok      bool
}

type tokenSample struct {
	at     time.Time
	tokens int
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the structured logger for the queue.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithDefaultTimeout sets the deadline applied when Enqueue is called with
// a non-positive timeout. Default: 10s.
func WithDefaultTimeout(d time.Duration) QueueOption {
	return func(q *Queue) { q.defaultTimeout = d }
}

// Queue serializes all reasoning requests to one outstanding call at a
// time. Producers may enqueue from any goroutine; a single worker drains
// the deque in FIFO order. Each request carries a wall-clock deadline; an
// expired request resolves ErrTimeout whether it is still queued or already
// executing, and the in-flight call's context is cancelled.
//
// One mutex guards the deque, the in-flight slot, and the stats windows.
type Queue struct {
	mu             sync.Mutex
	waiting        *list.List // of *request
	inFlight       bool
	cancelInFlight context.CancelFunc
	wake           chan struct{}
	closed         bool

	completions []completionSample
	tokens      []tokenSample

	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewQueue creates a reasoning queue. Call Run to start the worker.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		waiting:        list.New(),
		wake:           make(chan struct{}, 1),
		defaultTimeout: DefaultReasoningTimeout,
		logger:         nopLogger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a request and returns its future. The request resolves
// with the endpoint text, or fails with ErrTimeout once timeout elapses,
// ErrCancelled on Clear/shutdown, or the endpoint's error.
func (q *Queue) Enqueue(fn TaskFunc, timeout time.Duration) *Future {
	if timeout <= 0 {
		timeout = q.defaultTimeout
	}
	f := &Future{ch: make(chan Outcome, 1)}
	req := &request{fn: fn, deadline: time.Now().Add(timeout), future: f}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.ch <- Outcome{Err: ErrCancelled}
		return f
	}
	q.waiting.PushBack(req)
	depth := q.waiting.Len()
	q.mu.Unlock()

	q.logger.Debug("reasoning request enqueued", "depth", depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return f
}

// Run drains the queue until ctx is cancelled, executing one request at a
// time in enqueue order. On shutdown every pending and in-flight request
// resolves ErrCancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		req := q.pop()
		if req == nil {
			select {
			case <-ctx.Done():
				q.shutdown()
				return
			case <-q.wake:
				continue
			}
		}

		remaining := time.Until(req.deadline)
		if remaining <= 0 {
			q.resolve(req, Outcome{Err: ErrTimeout}, 0)
			continue
		}

		runCtx, cancel := context.WithDeadline(ctx, req.deadline)
		q.mu.Lock()
		q.inFlight = true
		q.cancelInFlight = cancel
		q.mu.Unlock()

		start := time.Now()
		text, usage, err := req.fn(runCtx)
		latency := time.Since(start)
		// Read the context state before releasing it: cancel() below turns
		// runCtx.Err() into Canceled for every request, which would make an
		// endpoint failure indistinguishable from a cancellation.
		ctxErr := runCtx.Err()
		cancel()

		q.mu.Lock()
		q.inFlight = false
		q.cancelInFlight = nil
		cleared := q.closed
		q.mu.Unlock()

		switch {
		case cleared || ctx.Err() != nil:
			q.resolve(req, Outcome{Err: ErrCancelled}, latency)
		case err != nil && ctxErr == context.DeadlineExceeded:
			q.resolve(req, Outcome{Err: ErrTimeout}, latency)
		case err != nil && ctxErr == context.Canceled:
			q.resolve(req, Outcome{Err: ErrCancelled}, latency)
		case err != nil:
			q.resolve(req, Outcome{Err: err}, latency)
		default:
			q.resolve(req, Outcome{Text: text, Usage: usage}, latency)
		}
	}
}

// pop removes and returns the head of the deque, or nil when empty.
func (q *Queue) pop() *request {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.waiting.Front()
	if front == nil {
		return nil
	}
	q.waiting.Remove(front)
	return front.Value.(*request)
}

// resolve records the completion sample and delivers the outcome.
func (q *Queue) resolve(req *request, o Outcome, latency time.Duration) {
	q.mu.Lock()
	now := time.Now()
	q.completions = append(q.completions, completionSample{at: now, latency: latency, ok: o.Err == nil})
	q.pruneLocked(now)
	q.mu.Unlock()

	if o.Err != nil {
		level := slog.LevelError
		if o.Err == ErrTimeout || o.Err == ErrCancelled {
			level = slog.LevelDebug // expected under load and shutdown
		}
		q.logger.Log(context.Background(), level, "reasoning request failed",
			"error", o.Err, "latency", latency)
	}
	req.future.ch <- o
}

// Clear cancels all waiting requests and the in-flight request with
// ErrCancelled. The queue keeps accepting new requests afterwards.
func (q *Queue) Clear() {
	q.mu.Lock()
	var cancelled []*request
	for e := q.waiting.Front(); e != nil; e = e.Next() {
		cancelled = append(cancelled, e.Value.(*request))
	}
	q.waiting.Init()
	cancel := q.cancelInFlight
	q.mu.Unlock()

	for _, req := range cancelled {
		req.future.ch <- Outcome{Err: ErrCancelled}
	}
	if cancel != nil {
		cancel()
	}
	q.logger.Info("reasoning queue cleared", "cancelled", len(cancelled))
}

// shutdown marks the queue closed and cancels everything still pending.
func (q *Queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	var cancelled []*request
	for e := q.waiting.Front(); e != nil; e = e.Next() {
		cancelled = append(cancelled, e.Value.(*request))
	}
	q.waiting.Init()
	q.mu.Unlock()

	for _, req := range cancelled {
		req.future.ch <- Outcome{Err: ErrCancelled}
	}
}

// RecordTokenUsage accumulates token counters into the sliding window.
// The dispatcher calls it with the usage reported on each response; the
// queue owns all usage accounting.
func (q *Queue) RecordTokenUsage(prompt, completion int) {
	total := prompt + completion
	if total <= 0 {
		return
	}
	q.mu.Lock()
	now := time.Now()
	q.tokens = append(q.tokens, tokenSample{at: now, tokens: total})
	q.pruneLocked(now)
	q.mu.Unlock()
}

// pruneLocked drops samples older than the stats window. Caller holds mu.
func (q *Queue) pruneLocked(now time.Time) {
	cutoff := now.Add(-statsWindow)
	i := 0
	for i < len(q.completions) && q.completions[i].at.Before(cutoff) {
		i++
	}
	q.completions = q.completions[i:]
	j := 0
	for j < len(q.tokens) && q.tokens[j].at.Before(cutoff) {
		j++
	}
	q.tokens = q.tokens[j:]
}

// Stats returns the queue's sliding-window statistics.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked(time.Now())

	s := QueueStats{QueueDepth: q.waiting.Len()}
	if q.inFlight {
		s.InFlight = 1
	}

	var okCount, failCount int
	var latencySum time.Duration
	for _, c := range q.completions {
		if c.ok {
			okCount++
		} else {
			failCount++
		}
		latencySum += c.latency
	}
	if n := okCount + failCount; n > 0 {
		s.AvgLatencyMs = float64(latencySum.Milliseconds()) / float64(n)
		s.SuccessRate = float64(okCount) / float64(n)
		s.FailureRate = float64(failCount) / float64(n)
	} else {
		s.SuccessRate = 1
	}

	var tokenSum int
	for _, t := range q.tokens {
		tokenSum += t.tokens
	}
	s.TokensPerSecond = float64(tokenSum) / statsWindow.Seconds()
	return s
}

// ThinkingCoefficient expresses spare reasoning capacity in
// [MinThinkingCoefficient, MaxThinkingCoefficient]. It starts at the upper
// bound and shrinks multiplicatively with queue depth, recent failures,
// and high recent latency, so effective agent cooldowns stretch as the
// endpoint saturates.
func (q *Queue) ThinkingCoefficient() float64 {
	s := q.Stats()

	c := MaxThinkingCoefficient
	c /= 1 + float64(s.QueueDepth)/2

	// Failures pull toward the floor.
	c *= 1 - 0.75*s.FailureRate

	// Latency above 2s degrades proportionally.
	if s.AvgLatencyMs > 2000 {
		c *= 2000 / s.AvgLatencyMs
	}

	if c < MinThinkingCoefficient {
		return MinThinkingCoefficient
	}
	if c > MaxThinkingCoefficient {
		return MaxThinkingCoefficient
	}
	return c
}
