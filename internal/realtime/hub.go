// Package realtime fans registration updates out to websocket subscribers.
//
// Rooms are keyed by event ULID. A connection may subscribe to several rooms
// at once; the hub tracks membership so a dropped connection is scrubbed from
// every room it joined. Publish preserves arrival order per event because the
// registration coordinator serializes commits and publishes per event.
package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/gatherly-live/server/internal/domain/registrations"
)

// Hub routes event updates to the peers subscribed to each event room.
// It implements registrations.Notifier.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

type room struct {
	mu        sync.Mutex
	eventULID string
	peers     map[*Peer]struct{}
}

func newRoom(eventULID string) *room {
	return &room{
		eventULID: eventULID,
		peers:     make(map[*Peer]struct{}),
	}
}

func (r *room) join(peer *Peer) {
	r.mu.Lock()
	r.peers[peer] = struct{}{}
	r.mu.Unlock()
}

func (r *room) leave(peer *Peer) bool {
	r.mu.Lock()
	delete(r.peers, peer)
	empty := len(r.peers) == 0
	r.mu.Unlock()
	return empty
}

func (r *room) snapshot() []*Peer {
	r.mu.Lock()
	peers := make([]*Peer, 0, len(r.peers))
	for peer := range r.peers {
		peers = append(peers, peer)
	}
	r.mu.Unlock()
	return peers
}

// Join subscribes peer to the room for eventULID, creating the room when it
// does not exist yet.
func (h *Hub) Join(eventULID string, peer *Peer) {
	h.room(eventULID).join(peer)
}

// Leave removes peer from the room for eventULID. Empty rooms are deleted so
// the hub returns to its baseline footprint once all subscribers are gone.
func (h *Hub) Leave(eventULID string, peer *Peer) {
	h.mu.Lock()
	r, ok := h.rooms[eventULID]
	h.mu.Unlock()
	if !ok {
		return
	}
	if r.leave(peer) {
		h.mu.Lock()
		if current, ok := h.rooms[eventULID]; ok && current == r {
			r.mu.Lock()
			if len(r.peers) == 0 {
				delete(h.rooms, eventULID)
			}
			r.mu.Unlock()
		}
		h.mu.Unlock()
	}
}

// Publish delivers update to every peer subscribed to the event's room.
// Peers whose write fails are dropped from the room; the connection reader
// notices the closed socket and finishes its own cleanup.
func (h *Hub) Publish(eventULID string, update registrations.Update) {
	h.mu.Lock()
	r, ok := h.rooms[eventULID]
	h.mu.Unlock()
	if !ok {
		return
	}

	frame, err := updateFrame(update)
	if err != nil {
		h.logger.Error().Err(err).Str("event_id", eventULID).Msg("failed to encode realtime update")
		return
	}

	for _, peer := range r.snapshot() {
		if err := peer.WriteFrame(frame); err != nil {
			h.logger.Warn().
				Err(err).
				Str("event_id", eventULID).
				Msg("dropping slow realtime subscriber")
			peer.Close()
			h.Leave(eventULID, peer)
		}
	}
}

// RoomCount reports the number of active rooms. Used by metrics collectors.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// SubscriberCount reports the total subscriptions across all rooms. A peer
// joined to two rooms counts twice.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	total := 0
	for _, r := range rooms {
		r.mu.Lock()
		total += len(r.peers)
		r.mu.Unlock()
	}
	return total
}

func (h *Hub) room(eventULID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[eventULID]
	if ok {
		return r
	}
	r = newRoom(eventULID)
	h.rooms[eventULID] = r
	return r
}
