// Package ids mints and validates the identifiers used on the public API
// surface. Events are addressed by ULID; internal rows and request
// correlation use UUIDs.
package ids

import (
	"crypto/rand"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ulidRegex = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)

	ErrInvalidULID = errors.New("invalid ULID")
)

// NewULID generates a new ULID string.
func NewULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func ValidateULID(value string) error {
	if !ulidRegex.MatchString(value) {
		return ErrInvalidULID
	}
	if _, err := ulid.ParseStrict(value); err != nil {
		return ErrInvalidULID
	}
	return nil
}

// NewUUID generates a random UUID string.
func NewUUID() string {
	return uuid.New().String()
}
