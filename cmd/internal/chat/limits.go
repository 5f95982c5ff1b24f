package chat

import "time"

// DefaultBusCapacity bounds how many events the bus retains for slow
// subscribers before they lag.
const DefaultBusCapacity = 100

// Transport limits enforced by the gateway.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max chat message length (runes); longer frames end the session.
	maxMessageChars = 4096

	writeTimeout = 5 * time.Second
)

const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	// Per-connection inbound frame budget.
	rateLimitFrames = 120
	rateLimitWindow = 10 * time.Second
)
