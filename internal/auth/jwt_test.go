package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTGenerateAuthenticate(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "gatherly")
	jwtToken, err := manager.Generate("user-1", "u1@example.com", "organizer")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	identity, err := manager.Authenticate(jwtToken)
	if err != nil {
		t.Fatalf("authenticate token: %v", err)
	}
	if identity.ID != "user-1" || identity.Email != "u1@example.com" || identity.Role != "organizer" {
		t.Fatalf("unexpected identity: %#v", identity)
	}
}

func TestJWTGenerateInvalid(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "gatherly")
	if _, err := manager.Generate("", "u@example.com", "user"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestJWTValidateMissing(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "gatherly")
	if _, err := manager.Validate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour, "gatherly").Generate("user-1", "u@example.com", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := NewJWTManager("secret-b", time.Hour, "gatherly").Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	manager := NewJWTManager("secret", -time.Minute, "gatherly")
	token, err := manager.Generate("user-1", "u@example.com", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := manager.Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestTokenFromHeader(t *testing.T) {
	if _, err := TokenFromHeader("nope"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if token, err := TokenFromHeader("Bearer token"); err != nil || token != "token" {
		t.Fatalf("expected token, got %s err %v", token, err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("verify password: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}
