package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNameTaken is returned by Roster.Claim when the name is already held
	// by a live session.
	ErrNameTaken = errors.New("name already taken")

	// ErrInvalidName is returned by Roster.Claim for names that can never be
	// claimed (currently only the empty string).
	ErrInvalidName = errors.New("invalid name")

	// ErrBusClosed is returned by Publish after the bus shut down, and by
	// Next once a subscription has drained everything retained at shutdown.
	ErrBusClosed = errors.New("bus closed")

	// ErrSubscriptionClosed is returned by Next after the subscription was
	// closed.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrLagged is the sentinel wrapped by LagError; test with errors.Is and
	// recover the skip count with errors.As.
	ErrLagged = errors.New("subscriber lagged")

	// ErrNonTextFrame reports a frame that is not text. The naming handshake
	// skips these; the inbound pump ends on them.
	ErrNonTextFrame = errors.New("non-text frame")

	// ErrRateLimited is returned by a gateway stream when the peer exceeds
	// the inbound frame budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrMessageTooLong is returned by a gateway stream for frames over the
	// message length limit.
	ErrMessageTooLong = errors.New("message too long")
)

// LagError reports that a subscriber fell behind the bus retention window.
// By the time it is returned the cursor has already been moved to the oldest
// retained event, so the caller just keeps consuming.
type LagError struct {
	Skipped uint64
}

func (e LagError) Error() string {
	return fmt.Sprintf("%s: skipped %d events", ErrLagged.Error(), e.Skipped)
}

func (e LagError) Unwrap() error { return ErrLagged }
