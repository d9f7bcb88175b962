package handlers

import (
	"net/http"
	"time"

	"github.com/gatherly-live/server/internal/api/middleware"
	"github.com/gatherly-live/server/internal/api/problem"
	"github.com/gatherly-live/server/internal/domain/events"
)

type StatsHandler struct {
	Events *events.Service
	Env    string
}

func NewStatsHandler(service *events.Service, env string) *StatsHandler {
	return &StatsHandler{Events: service, Env: env}
}

type recentEventResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Capacity     int       `json:"capacity"`
	CurrentCount int       `json:"current_count"`
	Status       string    `json:"status"`
}

type statsResponse struct {
	TotalEvents      int                   `json:"total_events"`
	ActiveEvents     int                   `json:"active_events"`
	TotalAttendees   int                   `json:"total_attendees"`
	TotalCapacity    int                   `json:"total_capacity"`
	RegistrationRate int                   `json:"registration_rate"`
	RecentEvents     []recentEventResponse `json:"recent_events"`
}

// Organizer returns the dashboard projection for the caller's own events.
func (h *StatsHandler) Organizer(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Events == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", nil, h.Env)
		return
	}

	stats, err := h.Events.OrganizerStats(r.Context(), identity.ID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	recent := make([]recentEventResponse, 0, len(stats.RecentEvents))
	for _, event := range stats.RecentEvents {
		recent = append(recent, recentEventResponse{
			ID:           event.ULID,
			Title:        event.Title,
			ScheduledAt:  event.ScheduledAt,
			Capacity:     event.Capacity,
			CurrentCount: event.CurrentCount,
			Status:       string(event.Status),
		})
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalEvents:      stats.TotalEvents,
		ActiveEvents:     stats.ActiveEvents,
		TotalAttendees:   stats.TotalAttendees,
		TotalCapacity:    stats.TotalCapacity,
		RegistrationRate: stats.RegistrationRate,
		RecentEvents:     recent,
	})
}
