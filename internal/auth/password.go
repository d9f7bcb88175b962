package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost 12 matches the work factor the signup flow has always used;
// raising it invalidates no existing hashes but slows logins.
const passwordHashCost = 12

var ErrInvalidCredentials = errors.New("invalid credentials")

func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hash, plaintext string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
