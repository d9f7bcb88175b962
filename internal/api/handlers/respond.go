package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gatherly-live/server/internal/api/problem"
	"github.com/gatherly-live/server/internal/domain/ids"
)

// FieldError is a validation failure tied to one request field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return r.PathValue(key)
}

// ulidParam extracts and validates a ULID path parameter. On failure it
// writes a validation problem and returns false.
func ulidParam(w http.ResponseWriter, r *http.Request, name, env string) (string, bool) {
	value := strings.TrimSpace(pathParam(r, name))
	if value == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", FieldError{Field: name, Message: "missing"}, env)
		return "", false
	}
	if err := ids.ValidateULID(value); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", FieldError{Field: name, Message: "invalid ULID"}, env)
		return "", false
	}
	return value, true
}

func idempotencyKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}
