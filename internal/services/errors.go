package services

import (
	"errors"
	"fmt"

	"vouchportal/internal/repositories"
)

var (
	// ErrSelfVouch is returned when a user targets their own handle or id.
	ErrSelfVouch = errors.New("you cannot vouch for yourself")

	// ErrDuplicateVouch is returned when the sender already has a pending or
	// confirmed vouch for the recipient.
	ErrDuplicateVouch = errors.New("you already vouched for this user")

	// ErrNotAuthorized is returned when someone other than the author edits a vouch.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrValidation is returned for malformed input such as an oversized message.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced user or vouch does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSelfInvite is returned when a user invites their own handle.
	ErrSelfInvite = errors.New("you cannot invite yourself")

	// ErrInviteCooldown is returned when the same invite was sent too recently.
	ErrInviteCooldown = errors.New("you can only invite this user once per cooldown period")

	// ErrInvalidHandshake is returned when the platform handshake fails verification.
	ErrInvalidHandshake = errors.New("invalid handshake")

	// ErrInvalidToken is returned for malformed, forged or expired session tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// notFound converts a repository miss into ErrNotFound and wraps anything else.
func notFound(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
