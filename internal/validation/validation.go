// Package validation checks inbound slash-command requests.
package validation

import (
	"crypto/subtle"
	"errors"
)

// ErrTokenMissing is returned when the request carries no token.
var ErrTokenMissing = errors.New("verification token missing")

// ErrTokenMismatch is returned when the token does not match the configured one.
var ErrTokenMismatch = errors.New("verification token mismatch")

// ErrTokenNotConfigured is returned when no expected token is configured.
// Every request is rejected in that case.
var ErrTokenNotConfigured = errors.New("verification token not configured")

// VerifyToken compares the request token with the configured token in
// constant time.
func VerifyToken(got, want string) error {
	if want == "" {
		return ErrTokenNotConfigured
	}
	if got == "" {
		return ErrTokenMissing
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}
