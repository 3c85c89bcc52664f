package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer. Subscribers only listen.
	maxMessageSize = 512
)

// subscriber is one websocket consumer with a bounded outbound queue.
// When the queue overflows the oldest frame is dropped and the subscriber
// is flagged for a full-snapshot resync, since a delta stream with a hole
// in it can never be reconciled.
type subscriber struct {
	conn   *websocket.Conn
	send   chan Frame
	facets map[string]bool
	logger *slog.Logger

	mu          sync.Mutex
	needsResync bool
	closed      bool
}

func newSubscriber(conn *websocket.Conn, facets map[string]bool, logger *slog.Logger) *subscriber {
	return &subscriber{
		conn:   conn,
		send:   make(chan Frame, sendQueueCap),
		facets: facets,
		logger: logger,
	}
}

// enqueue queues a frame, dropping the oldest queued frame when full.
func (sub *subscriber) enqueue(f Frame) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	for {
		select {
		case sub.send <- f:
			sub.mu.Unlock()
			return
		default:
			select {
			case dropped := <-sub.send:
				if dropped.Type == "state-update" || dropped.Type == "snapshot" {
					sub.needsResync = true
				}
			default:
			}
		}
	}
}

// takeResync consumes the resync flag.
func (sub *subscriber) takeResync() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	r := sub.needsResync
	sub.needsResync = false
	return r
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	close(sub.send)
	sub.mu.Unlock()
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings. Exits when the queue closes or a write fails.
func (sub *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteJSON(frame); err != nil {
				sub.logger.Debug("subscriber write failed", "error", err)
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages and enforces pong liveness. The
// stream is one-way; reading is only needed to process control frames and
// notice disconnects.
func (sub *subscriber) readPump() {
	defer sub.conn.Close()
	sub.conn.SetReadLimit(maxMessageSize)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sub.logger.Debug("subscriber read failed", "error", err)
			}
			return
		}
	}
}
