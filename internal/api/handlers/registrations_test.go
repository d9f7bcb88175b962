package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gatherly-live/server/internal/domain/events"
	"github.com/gatherly-live/server/internal/domain/registrations"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type ledgerAttendees struct {
	ledger *registrations.MemoryLedger
}

func (l ledgerAttendees) ListByEvent(_ context.Context, eventULID string) ([]registrations.Record, error) {
	return l.ledger.Records(eventULID), nil
}

type registrationsFixture struct {
	handler *RegistrationsHandler
	ledger  *registrations.MemoryLedger
}

func newRegistrationsFixture(eventsRepo stubEventsRepo) registrationsFixture {
	ledger := registrations.NewMemoryLedger()
	coordinator := registrations.NewCoordinator(ledger, registrations.NopNotifier{}, zerolog.Nop())
	service := events.NewService(eventsRepo, zerolog.Nop())
	return registrationsFixture{
		handler: NewRegistrationsHandler(coordinator, ledgerAttendees{ledger: ledger}, service, "test"),
		ledger:  ledger,
	}
}

func registerRequest(userID, eventULID string) (*httptest.ResponseRecorder, *http.Request) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/"+eventULID+"/register", nil)
	req.SetPathValue("id", eventULID)
	if userID != "" {
		req = authedRequest(req, userID)
	}
	return httptest.NewRecorder(), req
}

func problemType(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	typ, _ := payload["type"].(string)
	return typ
}

func TestRegisterSuccess(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})
	fx.ledger.AddEvent(testEventULID, 10, events.StatusPublished, time.Now().Add(time.Hour))

	res, req := registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var payload registrationResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.Equal(t, testEventULID, payload.EventID)
	require.Equal(t, 1, payload.CurrentCount)
	require.Equal(t, 10, payload.Capacity)
	require.NotEmpty(t, payload.RegistrationID)
	require.False(t, payload.Replayed)
}

func TestRegisterRequiresAuth(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})
	fx.ledger.AddEvent(testEventULID, 10, events.StatusPublished, time.Now().Add(time.Hour))

	res, req := registerRequest("", testEventULID)
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRegisterUnknownEventNotFound(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})

	res, req := registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestRegisterMalformedEventID(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})

	res, req := registerRequest("user-1", "nope")
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "https://gatherly.live/problems/validation-error", problemType(t, res))
}

func TestRegisterDraftEventRejected(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})
	fx.ledger.AddEvent(testEventULID, 10, events.StatusDraft, time.Now().Add(time.Hour))

	res, req := registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "https://gatherly.live/problems/not-published", problemType(t, res))
}

func TestRegisterPastEventRejected(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})
	fx.ledger.AddEvent(testEventULID, 10, events.StatusPublished, time.Now().Add(-time.Hour))

	res, req := registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "https://gatherly.live/problems/event-past", problemType(t, res))
}

func TestRegisterTwiceRejectsRetryWithoutRecount(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})
	fx.ledger.AddEvent(testEventULID, 10, events.StatusPublished, time.Now().Add(time.Hour))

	res, req := registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	res, req = registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "https://gatherly.live/problems/already-registered", problemType(t, res))
	require.Len(t, fx.ledger.Records(testEventULID), 1)
}

func TestRegisterFullEventRejected(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})
	fx.ledger.AddEvent(testEventULID, 1, events.StatusPublished, time.Now().Add(time.Hour))

	res, req := registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	res, req = registerRequest("user-2", testEventULID)
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "https://gatherly.live/problems/event-full", problemType(t, res))
}

func TestRegisterIdempotencyKeyReplays(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})
	fx.ledger.AddEvent(testEventULID, 10, events.StatusPublished, time.Now().Add(time.Hour))

	res, req := registerRequest("user-1", testEventULID)
	req.Header.Set("Idempotency-Key", "attempt-1")
	fx.handler.Register(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var first registrationResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&first))

	res, req = registerRequest("user-1", testEventULID)
	req.Header.Set("Idempotency-Key", "attempt-1")
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var second registrationResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&second))
	require.True(t, second.Replayed)
	require.Equal(t, first.RegistrationID, second.RegistrationID)
	require.Equal(t, first.CurrentCount, second.CurrentCount)
	require.Len(t, fx.ledger.Records(testEventULID), 1)
}

func TestRegisterTransientFailureRetriesThenUnavailable(t *testing.T) {
	fx := newRegistrationsFixture(stubEventsRepo{})
	fx.ledger.AddEvent(testEventULID, 10, events.StatusPublished, time.Now().Add(time.Hour))
	fx.ledger.FailNext(5)

	res, req := registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)

	require.Equal(t, http.StatusServiceUnavailable, res.Code)
	require.Equal(t, "1", res.Header().Get("Retry-After"))
}

func TestListAttendeesOrganizerOnly(t *testing.T) {
	eventsRepo := stubEventsRepo{
		getFn: func(ulid string) (*events.Event, error) {
			return &events.Event{ULID: ulid, OrganizerID: "organizer-1"}, nil
		},
	}
	fx := newRegistrationsFixture(eventsRepo)
	fx.ledger.AddEvent(testEventULID, 10, events.StatusPublished, time.Now().Add(time.Hour))

	res, req := registerRequest("user-1", testEventULID)
	fx.handler.Register(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	req = authedRequest(httptest.NewRequest(http.MethodGet, "/api/v1/events/"+testEventULID+"/registrations", nil), "organizer-1")
	req.SetPathValue("id", testEventULID)
	res = httptest.NewRecorder()
	fx.handler.ListAttendees(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var payload attendeeListResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.Equal(t, 1, payload.Total)
	require.Equal(t, "user-1", payload.Items[0].UserID)

	req = authedRequest(httptest.NewRequest(http.MethodGet, "/api/v1/events/"+testEventULID+"/registrations", nil), "someone-else")
	req.SetPathValue("id", testEventULID)
	res = httptest.NewRecorder()
	fx.handler.ListAttendees(res, req)

	require.Equal(t, http.StatusForbidden, res.Code)
}
