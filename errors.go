package crewsim

import (
	"errors"
	"fmt"
)

// ErrTimeout resolves a reasoning request whose deadline expired while it
// was queued or executing. Expected under load; logged at debug.
var ErrTimeout = errors.New("reasoning request timed out")

// ErrCancelled resolves a reasoning request discarded by Queue.Clear or
// shutdown.
var ErrCancelled = errors.New("reasoning request cancelled")

// ErrHTTP is a non-2xx response from the reasoning endpoint.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrEndpoint is a malformed or otherwise unusable endpoint response.
type ErrEndpoint struct {
	Message string
}

func (e *ErrEndpoint) Error() string {
	return "endpoint: " + e.Message
}

// ErrParse is a response that did not match the GOAL/TARGET/REASONING
// pattern. The caller falls back to a default decision.
type ErrParse struct {
	Raw string
}

func (e *ErrParse) Error() string {
	return fmt.Sprintf("unparseable response: %.80q", e.Raw)
}

// ErrInvariant is an unreachable state observed at runtime, e.g. a WALKING
// agent without waypoints. The agent is stopped and marked idle.
type ErrInvariant struct {
	AgentID string
	Message string
}

func (e *ErrInvariant) Error() string {
	return fmt.Sprintf("invariant violated for agent %s: %s", e.AgentID, e.Message)
}

// IsEndpointFailure reports whether err is an endpoint-side failure
// (non-2xx or malformed body) as opposed to a timeout or cancellation.
func IsEndpointFailure(err error) bool {
	var h *ErrHTTP
	var ep *ErrEndpoint
	return errors.As(err, &h) || errors.As(err, &ep)
}
