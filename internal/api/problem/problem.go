// Package problem renders errors as RFC 7807 application/problem+json
// responses. Business-rule rejections and validation failures are reported
// with stable type URIs so clients can branch on them without string matching.
package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

// Stable problem type URIs used across the API surface.
const (
	TypeValidation        = "https://gatherly.live/problems/validation-error"
	TypeUnauthorized      = "https://gatherly.live/problems/unauthorized"
	TypeForbidden         = "https://gatherly.live/problems/forbidden"
	TypeNotFound          = "https://gatherly.live/problems/not-found"
	TypeEventFull         = "https://gatherly.live/problems/event-full"
	TypeAlreadyRegistered = "https://gatherly.live/problems/already-registered"
	TypeNotPublished      = "https://gatherly.live/problems/not-published"
	TypeEventPast         = "https://gatherly.live/problems/event-past"
	TypeConflict          = "https://gatherly.live/problems/conflict"
	TypeRetryable         = "https://gatherly.live/problems/retryable"
	TypeServerError       = "https://gatherly.live/problems/server-error"
)

type ProblemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

// Write renders a problem response. Error detail is only surfaced verbatim
// in development and test environments; production clients get the generic
// status text. 5xx responses are logged at error level, 4xx at warn.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	p := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&p)
	}

	if p.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			p.Detail = err.Error()
		} else {
			p.Detail = http.StatusText(status)
		}
	}

	if p.Instance == "" && r != nil {
		p.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, p)
}

func WriteProblem(w http.ResponseWriter, p ProblemDetails) {
	payload, err := json.Marshal(p)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(p.Status)
	_, _ = w.Write(payload)
}
