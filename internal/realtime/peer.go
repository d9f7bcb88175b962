package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/gatherly-live/server/internal/domain/registrations"
)

// Frame is the envelope for every message exchanged over a realtime
// connection, in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client frame types.
const (
	FrameJoinEvent  = "join-event"
	FrameLeaveEvent = "leave-event"
)

// Server frame types. Update frames reuse the registration update type
// constants directly.
const (
	FrameJoined = "joined"
	FrameLeft   = "left"
	FrameError  = "error"
)

type joinPayload struct {
	EventID string `json:"event_id"`
}

type joinedPayload struct {
	EventID      string `json:"event_id"`
	CurrentCount int    `json:"current_count"`
	Capacity     int    `json:"capacity"`
	ServerTime   string `json:"server_time"`
}

type leftPayload struct {
	EventID string `json:"event_id"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Peer serializes writes to a single websocket connection. The encoder is
// shared between the connection's own reader goroutine and hub broadcasts, so
// every write goes through the mutex. A write deadline bounds how long a slow
// consumer can block a broadcast.
type Peer struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	encoder      *json.Encoder
	writeTimeout time.Duration
}

// NewPeer wraps conn with a serialized, deadline-bounded writer.
func NewPeer(conn *websocket.Conn, writeTimeout time.Duration) *Peer {
	return &Peer{
		conn:         conn,
		encoder:      json.NewEncoder(conn),
		writeTimeout: writeTimeout,
	}
}

// WriteFrame sends frame to the peer. Returns an error when the write misses
// its deadline or the connection is gone; callers treat that as a dead peer.
func (p *Peer) WriteFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	return p.encoder.Encode(frame)
}

// Close closes the underlying connection. Safe to call more than once.
func (p *Peer) Close() {
	_ = p.conn.Close()
}

func (p *Peer) writeError(code, message string) {
	_ = p.WriteFrame(Frame{
		Type:    FrameError,
		Payload: mustJSON(errorPayload{Code: code, Message: message}),
	})
}

func updateFrame(update registrations.Update) (Frame, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal update: %w", err)
	}
	return Frame{Type: string(update.Type), Payload: payload}, nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
