package chat

import "context"

// Stream is the bidirectional text-frame connection a session owns. The
// gateway adapts websocket connections to it; tests substitute in-memory
// fakes.
//
// ReadText blocks until a frame arrives, the peer goes away, or ctx is done.
// A non-text frame surfaces as ErrNonTextFrame with the payload discarded.
// Both directions honor ctx cancellation; a cancelled call must not leak the
// wait.
type Stream interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
}
