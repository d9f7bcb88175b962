package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWrite_DevIncludesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/events/abc/register", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeEventFull, "Event full", errors.New("no seats left"), "development")

	if got := res.Result().Header.Get("Content-Type"); got != "application/problem+json" {
		t.Fatalf("expected content type problem+json, got %s", got)
	}

	var body ProblemDetails
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Detail != "no seats left" {
		t.Fatalf("expected detail no seats left, got %s", body.Detail)
	}
	if body.Instance != "/api/v1/events/abc/register" {
		t.Fatalf("expected instance path, got %s", body.Instance)
	}
	if body.Type != TypeEventFull {
		t.Fatalf("expected event-full type, got %s", body.Type)
	}
}

func TestWrite_ProdSanitizesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusInternalServerError, TypeServerError, "Server error", errors.New("pool exhausted"), "production")

	var body ProblemDetails
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Detail != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("expected sanitized detail, got %s", body.Detail)
	}
}

func TestWrite_ExplicitDetailWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeValidation, "Invalid request", errors.New("internal wording"), "production",
		WithDetail("capacity must be between 1 and 1000"))

	var body ProblemDetails
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Detail != "capacity must be between 1 and 1000" {
		t.Fatalf("expected explicit detail, got %s", body.Detail)
	}
}
