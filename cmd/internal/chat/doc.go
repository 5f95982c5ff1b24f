// Package chat implements the presence-aware broadcast core: a roster of
// claimed display names, a bounded broadcast bus with per-subscriber lag
// handling, the session lifecycle state machine, and the duplex relay that
// couples each connection's inbound and outbound pumps.
//
// The websocket gateway at the edge of the package adapts accepted
// connections into the core's Stream abstraction; everything inside the core
// is transport-agnostic. Cross-session shared state is limited to the Roster
// and the Bus, both injected handles.
package chat
