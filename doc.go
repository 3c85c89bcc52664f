// Package crewsim is a server-side simulation of autonomous agents on a 2D
// polygonal map. A fixed-rate tick loop advances agent motion over a
// visibility-graph pathfinder, recomputes perception, fires behavioral
// triggers, dispatches reasoning queries to an external chat-completion
// endpoint through a serialized queue with adaptive cooldowns, coordinates
// two-party conversations, and emits delta-encoded world snapshots to
// websocket subscribers.
//
// The package is organized around explicit dependencies: construct a
// geo.Map, a reasoning Provider, and a Queue, hand them to NewSimulation,
// and drive
// the Simulation with Start. All agent state is owned by the tick loop;
// reasoning results cross back into it through channels.
package crewsim
