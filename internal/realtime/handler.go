package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/gatherly-live/server/internal/api/problem"
	"github.com/gatherly-live/server/internal/auth"
	"github.com/gatherly-live/server/internal/config"
	"github.com/gatherly-live/server/internal/domain/ids"
	"github.com/gatherly-live/server/internal/domain/registrations"
)

const maxDecodeErrorsPerConn = 3

// Snapshotter resolves the live counts for an event so joins can report the
// current state before any update arrives.
type Snapshotter interface {
	Snapshot(ctx context.Context, eventULID, userID string) (registrations.Snapshot, error)
}

// Handler upgrades HTTP requests to websocket subscriptions against the hub.
type Handler struct {
	hub      *Hub
	snapshot Snapshotter
	jwt      *auth.JWTManager
	cfg      config.RealtimeConfig
	logger   zerolog.Logger
}

// NewHandler wires the websocket endpoint. jwt may enforce identity on the
// upgrade; anonymous connections are admitted only when the config allows it.
func NewHandler(hub *Hub, snapshot Snapshotter, jwt *auth.JWTManager, cfg config.RealtimeConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		snapshot: snapshot,
		jwt:      jwt,
		cfg:      cfg,
		logger:   logger,
	}
}

type wsIdentityKey struct{}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		if !h.cfg.AllowAnonymousSubscribe {
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
				"Authentication Required", nil, "",
				problem.WithDetail("a bearer token is required to subscribe"))
			return
		}
	} else {
		identity, err := h.jwt.Authenticate(token)
		if err != nil {
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
				"Authentication Required", nil, "",
				problem.WithDetail("invalid or expired token"))
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), wsIdentityKey{}, identity))
	}

	websocket.Handler(h.serveConn).ServeHTTP(w, r)
}

// tokenFromRequest accepts the Authorization header or, because browser
// websocket clients cannot set headers, a token query parameter.
func tokenFromRequest(r *http.Request) string {
	if token, err := auth.TokenFromHeader(r.Header.Get("Authorization")); err == nil {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	// The hijacked connection still carries the http.Server read/write
	// deadlines armed for the upgrade request. A subscription outlives
	// them, so clear both; writes get a fresh per-frame deadline.
	_ = conn.SetDeadline(time.Time{})

	peer := NewPeer(conn, h.cfg.WriteTimeout)
	userID := ""
	if request := conn.Request(); request != nil {
		if identity, ok := request.Context().Value(wsIdentityKey{}).(auth.Identity); ok {
			userID = identity.ID
		}
	}

	joined := make(map[string]struct{})
	defer func() {
		for eventULID := range joined {
			h.hub.Leave(eventULID, peer)
		}
	}()

	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			peer.writeError("INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		switch frame.Type {
		case FrameJoinEvent:
			h.handleJoin(conn.Request().Context(), peer, userID, frame, joined)
		case FrameLeaveEvent:
			h.handleLeave(peer, frame, joined)
		default:
			peer.writeError("INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func (h *Handler) handleJoin(ctx context.Context, peer *Peer, userID string, frame Frame, joined map[string]struct{}) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		peer.writeError("INVALID_ARGUMENT", "invalid join payload")
		return
	}
	eventULID := strings.TrimSpace(payload.EventID)
	if err := ids.ValidateULID(eventULID); err != nil {
		peer.writeError("INVALID_ARGUMENT", "event_id must be a valid ULID")
		return
	}
	if _, ok := joined[eventULID]; ok {
		peer.writeError("ALREADY_JOINED", "already subscribed to this event")
		return
	}
	if h.cfg.MaxRoomsPerConnection > 0 && len(joined) >= h.cfg.MaxRoomsPerConnection {
		peer.writeError("RESOURCE_EXHAUSTED", "too many subscriptions on this connection")
		return
	}

	snapshot, err := h.snapshot.Snapshot(ctx, eventULID, userID)
	if err != nil {
		if errors.Is(err, registrations.ErrEventNotFound) {
			peer.writeError("NOT_FOUND", "event not found")
			return
		}
		h.logger.Error().Err(err).Str("event_id", eventULID).Msg("realtime join snapshot failed")
		peer.writeError("UNAVAILABLE", "event lookup unavailable")
		return
	}

	h.hub.Join(eventULID, peer)
	joined[eventULID] = struct{}{}

	_ = peer.WriteFrame(Frame{
		Type: FrameJoined,
		Payload: mustJSON(joinedPayload{
			EventID:      eventULID,
			CurrentCount: snapshot.CurrentCount,
			Capacity:     snapshot.Capacity,
			ServerTime:   time.Now().UTC().Format(time.RFC3339),
		}),
	})
}

func (h *Handler) handleLeave(peer *Peer, frame Frame, joined map[string]struct{}) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		peer.writeError("INVALID_ARGUMENT", "invalid leave payload")
		return
	}
	eventULID := strings.TrimSpace(payload.EventID)
	if _, ok := joined[eventULID]; !ok {
		peer.writeError("NOT_JOINED", "not subscribed to this event")
		return
	}

	h.hub.Leave(eventULID, peer)
	delete(joined, eventULID)

	_ = peer.WriteFrame(Frame{
		Type:    FrameLeft,
		Payload: mustJSON(leftPayload{EventID: eventULID}),
	})
}
