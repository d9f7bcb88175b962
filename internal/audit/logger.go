// Package audit records organizer mutations as structured log entries so
// capacity disputes can be traced back to who changed what, and when.
package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Entry struct {
	Action     string
	Actor      string
	EventULID  string
	IPAddress  string
	Status     string
	OccurredAt time.Time
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type Logger struct {
	logger zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

func (l *Logger) Record(entry Entry) {
	if l == nil {
		return
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	l.logger.Info().
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("event", entry.EventULID).
		Str("ip", entry.IPAddress).
		Str("status", entry.Status).
		Time("occurred_at", entry.OccurredAt).
		Msg("audit")
}

// RecordRequest logs one mutation attempted through the HTTP surface.
func (l *Logger) RecordRequest(r *http.Request, action, actor, eventULID, status string) {
	l.Record(Entry{
		Action:    action,
		Actor:     actor,
		EventULID: eventULID,
		IPAddress: clientIP(r),
		Status:    status,
	})
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
