package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gatherly-live/server/internal/api/middleware"
	"github.com/gatherly-live/server/internal/api/problem"
	"github.com/gatherly-live/server/internal/domain/events"
	"github.com/gatherly-live/server/internal/domain/registrations"
	"github.com/gatherly-live/server/internal/metrics"
)

// AttendeeLister exposes the committed registrations of one event.
type AttendeeLister interface {
	ListByEvent(ctx context.Context, eventULID string) ([]registrations.Record, error)
}

type RegistrationsHandler struct {
	Coordinator *registrations.Coordinator
	Attendees   AttendeeLister
	Events      *events.Service
	Env         string
}

func NewRegistrationsHandler(coordinator *registrations.Coordinator, attendees AttendeeLister, eventsService *events.Service, env string) *RegistrationsHandler {
	return &RegistrationsHandler{Coordinator: coordinator, Attendees: attendees, Events: eventsService, Env: env}
}

type registrationResponse struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	CurrentCount   int    `json:"current_count"`
	Capacity       int    `json:"capacity"`
	Replayed       bool   `json:"replayed,omitempty"`
}

type attendeeResponse struct {
	UserID       string    `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

type attendeeListResponse struct {
	Items []attendeeResponse `json:"items"`
	Total int                `json:"total"`
}

// Register commits one attendance claim. The registering client always gets
// a definitive answer for its own request; room fan-out happens after the
// commit and never affects this response.
func (h *RegistrationsHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Coordinator == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", nil, h.Env)
		return
	}

	ulid, ok := ulidParam(w, r, "id", h.Env)
	if !ok {
		return
	}

	start := time.Now()
	outcome, err := h.Coordinator.Register(r.Context(), registrations.Command{
		EventULID:      ulid,
		UserID:         identity.ID,
		IdempotencyKey: idempotencyKey(r),
	})
	metrics.RegistrationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(registrationOutcome(err)).Inc()
		h.writeRegisterError(w, r, err)
		return
	}

	if outcome.Replayed {
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeReplayed).Inc()
	} else {
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeCommitted).Inc()
		if outcome.CurrentCount == outcome.Capacity {
			metrics.EventsFilledTotal.Inc()
		}
	}

	writeJSON(w, http.StatusOK, registrationResponse{
		RegistrationID: outcome.RegistrationID,
		EventID:        outcome.EventULID,
		CurrentCount:   outcome.CurrentCount,
		Capacity:       outcome.Capacity,
		Replayed:       outcome.Replayed,
	})
}

func (h *RegistrationsHandler) writeRegisterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registrations.ErrEventNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, h.Env)
	case errors.Is(err, registrations.ErrNotPublished):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeNotPublished, "Event is not published", err, h.Env)
	case errors.Is(err, registrations.ErrEventPast):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeEventPast, "Event has already started", err, h.Env)
	case errors.Is(err, registrations.ErrAlreadyRegistered):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeAlreadyRegistered, "Already registered", err, h.Env)
	case errors.Is(err, registrations.ErrEventFull):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeEventFull, "Event is full", err, h.Env)
	case errors.Is(err, registrations.ErrTransient):
		w.Header().Set("Retry-After", "1")
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeRetryable, "Temporarily unavailable", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}

func registrationOutcome(err error) string {
	switch {
	case errors.Is(err, registrations.ErrEventNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, registrations.ErrNotPublished):
		return metrics.OutcomeNotPublished
	case errors.Is(err, registrations.ErrEventPast):
		return metrics.OutcomeEventPast
	case errors.Is(err, registrations.ErrAlreadyRegistered):
		return metrics.OutcomeAlreadyRegistered
	case errors.Is(err, registrations.ErrEventFull):
		return metrics.OutcomeEventFull
	default:
		return metrics.OutcomeTransient
	}
}

// ListAttendees is organizer-only: the caller must own the event.
func (h *RegistrationsHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Attendees == nil || h.Events == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", nil, h.Env)
		return
	}

	ulid, ok := ulidParam(w, r, "id", h.Env)
	if !ok {
		return
	}

	event, err := h.Events.GetByULID(r.Context(), ulid)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	if event.OrganizerID != identity.ID {
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Not the event organizer", events.ErrNotOrganizer, h.Env)
		return
	}

	records, err := h.Attendees.ListByEvent(r.Context(), ulid)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]attendeeResponse, 0, len(records))
	for _, record := range records {
		items = append(items, attendeeResponse{UserID: record.UserID, RegisteredAt: record.RegisteredAt})
	}

	writeJSON(w, http.StatusOK, attendeeListResponse{Items: items, Total: len(items)})
}
