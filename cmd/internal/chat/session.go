package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// State is a session's position in its lifecycle.
type State uint8

const (
	StateConnecting State = iota
	StateNaming
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNaming:
		return "naming"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// takenNotice is the single frame written to a peer whose naming attempt
// failed, before the connection is closed from this side.
const takenNotice = "Username already taken."

// Session drives one connection from the naming handshake through teardown.
//
// A session owns its stream and claimed name exclusively; the roster and bus
// are shared handles. Construct with NewSession and call Run exactly once.
type Session struct {
	id     string
	log    *slog.Logger
	roster *Roster
	bus    *Bus
	stream Stream
	m      *Metrics

	mu    sync.Mutex
	state State
	name  string
	sub   *Subscription

	teardown sync.Once
}

// NewSession constructs a session over an established stream. A nil metrics
// handle records nothing.
func NewSession(id string, log *slog.Logger, roster *Roster, bus *Bus, stream Stream, m *Metrics) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:     id,
		log:    log,
		roster: roster,
		bus:    bus,
		stream: stream,
		m:      m,
	}
}

// ID returns the session id assigned at accept time.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Name returns the claimed display name, or "" before naming succeeds.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Run executes the lifecycle: naming handshake, join announcement, relay,
// teardown. It blocks until the session is closed and returns the cause:
// ErrNameTaken/ErrInvalidName for a rejected handshake, the stream or bus
// error that ended the relay otherwise. Teardown always runs, so a returned
// error never leaves a name reserved.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	s.setState(StateNaming)

	name, err := s.awaitName(ctx)
	if err != nil {
		if errors.Is(err, ErrNameTaken) || errors.Is(err, ErrInvalidName) {
			s.log.Info("chat.session.rejected", "err", err)
			s.m.nameRejected()
			// Exactly one rejection frame. An invalid name draws the same
			// notice, so the peer cannot probe the difference.
			_ = s.stream.WriteText(ctx, takenNotice)
		}
		return err
	}

	s.mu.Lock()
	s.name = name
	s.mu.Unlock()

	// Subscribe before announcing so this session observes its own join.
	sub := s.bus.Subscribe()
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	s.setState(StateActive)
	s.m.sessionWentActive()
	s.log.Info("chat.session.active", "name", name)

	if err := s.bus.Publish(Joined(name)); err != nil {
		return err
	}

	return relay(ctx, s.log, s.stream, sub, s.bus, name, s.m)
}

// awaitName reads frames until the peer's first text frame and claims it as
// the display name. Non-text frames are skipped; any claim failure or stream
// error is returned as-is.
func (s *Session) awaitName(ctx context.Context) (string, error) {
	for {
		name, err := s.stream.ReadText(ctx)
		if err != nil {
			if errors.Is(err, ErrNonTextFrame) {
				continue
			}
			return "", err
		}

		if err := s.roster.Claim(name); err != nil {
			return "", err
		}
		return name, nil
	}
}

// Close tears the session down: announce the leave, release the name, then
// close the subscription, in that order. Safe to call any number of times;
// only the first call acts.
func (s *Session) Close() {
	s.teardown.Do(func() {
		s.mu.Lock()
		name, sub := s.name, s.sub
		wasActive := s.state == StateActive
		s.mu.Unlock()

		if wasActive {
			s.setState(StateClosing)
			s.m.sessionLeftActive()
		}

		if name != "" {
			// The leave announcement may race bus shutdown; a closed bus is
			// not an error on this path.
			_ = s.bus.Publish(Left(name))
			s.roster.Release(name)
		}
		if sub != nil {
			sub.Close()
		}

		s.setState(StateClosed)
		s.log.Info("chat.session.closed", "name", name)
	})
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()

	s.log.Debug("chat.session.state", "state", st.String())
}
