package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gatherly-live/server/internal/api/middleware"
	"github.com/gatherly-live/server/internal/api/problem"
	"github.com/gatherly-live/server/internal/audit"
	"github.com/gatherly-live/server/internal/domain/events"
)

type EventsHandler struct {
	Service *events.Service
	Audit   *audit.Logger
	Env     string
}

func NewEventsHandler(service *events.Service, env string) *EventsHandler {
	return &EventsHandler{Service: service, Env: env}
}

// WithAudit attaches an audit trail for organizer mutations.
func (h *EventsHandler) WithAudit(logger *audit.Logger) *EventsHandler {
	h.Audit = logger
	return h
}

type eventResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Capacity     int       `json:"capacity"`
	CurrentCount int       `json:"current_count"`
	Status       string    `json:"status"`
	OrganizerID  string    `json:"organizer_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type eventListResponse struct {
	Items []eventResponse `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func toEventResponse(event events.Event) eventResponse {
	return eventResponse{
		ID:           event.ULID,
		Title:        event.Title,
		Description:  event.Description,
		Location:     event.Location,
		ScheduledAt:  event.ScheduledAt,
		Capacity:     event.Capacity,
		CurrentCount: event.CurrentCount,
		Status:       string(event.Status),
		OrganizerID:  event.OrganizerID,
		CreatedAt:    event.CreatedAt,
		UpdatedAt:    event.UpdatedAt,
	}
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	filters, pagination, err := events.ParseListQuery(r.URL.Query())
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	result, err := h.Service.List(r.Context(), filters, pagination)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]eventResponse, 0, len(result.Events))
	for _, event := range result.Events {
		items = append(items, toEventResponse(event))
	}

	writeJSON(w, http.StatusOK, eventListResponse{
		Items: items,
		Total: result.Total,
		Page:  pagination.Page,
		Limit: pagination.Limit,
	})
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	ulid, ok := ulidParam(w, r, "id", h.Env)
	if !ok {
		return
	}

	event, err := h.Service.GetByULID(r.Context(), ulid)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, toEventResponse(*event))
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", nil, h.Env)
		return
	}

	var input events.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	event, err := h.Service.Create(r.Context(), identity.ID, input)
	if err != nil {
		h.Audit.RecordRequest(r, "event.create", identity.ID, "", audit.StatusFailure)
		var validation events.ValidationError
		if errors.As(err, &validation) {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	h.Audit.RecordRequest(r, "event.create", identity.ID, event.ULID, audit.StatusSuccess)
	writeJSON(w, http.StatusCreated, toEventResponse(*event))
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
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

	var input events.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	event, err := h.Service.Update(r.Context(), identity.ID, ulid, input)
	if err != nil {
		h.Audit.RecordRequest(r, "event.update", identity.ID, ulid, audit.StatusFailure)
		h.writeMutationError(w, r, err)
		return
	}

	h.Audit.RecordRequest(r, "event.update", identity.ID, ulid, audit.StatusSuccess)
	writeJSON(w, http.StatusOK, toEventResponse(*event))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
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

	if err := h.Service.Delete(r.Context(), identity.ID, ulid); err != nil {
		h.Audit.RecordRequest(r, "event.delete", identity.ID, ulid, audit.StatusFailure)
		h.writeMutationError(w, r, err)
		return
	}

	h.Audit.RecordRequest(r, "event.delete", identity.ID, ulid, audit.StatusSuccess)
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventsHandler) writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, h.Env)
	case errors.Is(err, events.ErrNotOrganizer):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Not the event organizer", err, h.Env)
	default:
		var validation events.ValidationError
		if errors.As(err, &validation) {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}
