package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers unknown sessions, expired sessions and unknown images alike.
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("session already has an active sender")
	ErrInvalidState    = errors.New("operation not allowed in current session state")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrStorage         = errors.New("storage failure")

	// ErrReceiverGone is returned by uploads when the receiver stopped polling.
	// The session is evicted when it is returned.
	ErrReceiverGone = fmt.Errorf("receiver disconnected: %w", ErrInvalidState)
)
