package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/samber/lo"
)

// defaultAllowedOrigins keeps the gateway secure-by-default for dev: only
// localhost browsers may connect unless configured otherwise.
var defaultAllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}

// GatewayConfig carries the transport policy the app resolves from its
// environment. Zero values fall back to the package defaults.
type GatewayConfig struct {
	// AllowedOrigins is the browser origin allowlist. The single entry "*"
	// disables the origin check entirely (dev only). Requests without an
	// Origin header (CLI clients, probes) are always admitted.
	AllowedOrigins []string

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// RateLimit inbound frames per RateWindow before the session is closed
	// with a policy violation.
	RateLimit  int
	RateWindow time.Duration
}

// Gateway upgrades HTTP requests into chat sessions. It owns everything the
// core treats as the transport's job: origin policy, frame limits,
// heartbeats, rate limits, and close codes.
type Gateway struct {
	log    *slog.Logger
	roster *Roster
	bus    *Bus
	m      *Metrics

	allowAnyOrigin bool
	allowedOrigins []string
	originPatterns []string

	heartbeatEvery  time.Duration
	heartbeatExpiry time.Duration

	rateLimit  int
	rateWindow time.Duration

	sessions sync.WaitGroup
}

// NewGateway constructs a gateway over the shared roster and bus. A nil
// metrics handle records nothing.
func NewGateway(log *slog.Logger, roster *Roster, bus *Bus, m *Metrics, cfg GatewayConfig) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &Gateway{log: log, roster: roster, bus: bus, m: m}

	g.allowedOrigins = cfg.AllowedOrigins
	if len(g.allowedOrigins) == 0 {
		g.allowedOrigins = defaultAllowedOrigins
	}
	g.allowAnyOrigin = lo.Contains(g.allowedOrigins, "*")
	g.originPatterns = originPatterns(g.allowedOrigins)

	g.heartbeatEvery = cfg.HeartbeatInterval
	if g.heartbeatEvery <= 0 {
		g.heartbeatEvery = heartbeatInterval
	}
	g.heartbeatExpiry = cfg.HeartbeatTimeout
	if g.heartbeatExpiry <= 0 {
		g.heartbeatExpiry = heartbeatTimeout
	}

	g.rateLimit = cfg.RateLimit
	if g.rateLimit <= 0 {
		g.rateLimit = rateLimitFrames
	}
	g.rateWindow = cfg.RateWindow
	if g.rateWindow <= 0 {
		g.rateWindow = rateLimitWindow
	}

	return g
}

// ServeHTTP upgrades the request and runs the session until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.checkOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,

		// Accept runs its own origin check on top of ours; "*" turns both
		// off.
		InsecureSkipVerify: g.allowAnyOrigin,
	})
	if err != nil {
		g.log.Info("ws.accept.fail", "err", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	g.sessions.Add(1)
	defer g.sessions.Done()

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session.id", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "id allocation failed")
		return
	}

	log := g.log.With("session_id", sessionID, "remote", r.RemoteAddr)
	log.Info("ws.accept")
	g.m.sessionStarted()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.heartbeat(ctx, log, conn)

	stream := newWSStream(conn, NewRateLimiter(g.rateLimit, g.rateWindow))
	sess := NewSession(sessionID, log, g.roster, g.bus, stream, g.m)

	g.finish(log, conn, sess.Run(ctx))
}

// Wait blocks until every accepted session has finished its teardown. Close
// the bus first or this never returns.
func (g *Gateway) Wait() {
	g.sessions.Wait()
}

// finish maps the session outcome to a close code and a log line. Expected
// ends (peer gone, shutdown) stay at info.
func (g *Gateway) finish(log *slog.Logger, conn *websocket.Conn, err error) {
	switch {
	case err == nil:
		_ = conn.Close(websocket.StatusNormalClosure, "bye")

	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrInvalidName):
		// The rejection notice is already on the wire.
		_ = conn.Close(websocket.StatusPolicyViolation, "name taken")

	case errors.Is(err, ErrBusClosed):
		log.Info("ws.session.end", "reason", "shutdown")
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")

	case errors.Is(err, ErrRateLimited):
		log.Info("ws.session.end", "reason", "rate limited")
		_ = conn.Close(websocket.StatusPolicyViolation, "rate limited")

	case errors.Is(err, ErrMessageTooLong):
		log.Info("ws.session.end", "reason", "message too long")
		_ = conn.Close(websocket.StatusMessageTooBig, "message too long")

	case errors.Is(err, ErrNonTextFrame):
		log.Info("ws.session.end", "reason", "non-text frame")
		_ = conn.Close(websocket.StatusUnsupportedData, "text frames only")

	case isExpectedCloseErr(err):
		log.Info("ws.session.end", "reason", "peer gone")
		_ = conn.Close(websocket.StatusNormalClosure, "bye")

	default:
		log.Warn("ws.session.end", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "error")
	}
}

// heartbeat pings the peer until ctx ends. After maxPingFailures misses the
// connection is closed so pending reads unwind.
func (g *Gateway) heartbeat(ctx context.Context, log *slog.Logger, conn *websocket.Conn) {
	t := time.NewTicker(g.heartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, g.heartbeatExpiry)
			err := conn.Ping(pingCtx)
			cancel()

			if err != nil {
				failures++
				log.Info("ws.ping.fail", "failures", failures, "err", err)
				if failures >= maxPingFailures {
					_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// isExpectedCloseErr reports whether err is a normal way for a session to
// end: the peer sent a close frame, the connection went away, or the
// context ended.
func isExpectedCloseErr(err error) bool {
	if websocket.CloseStatus(err) != -1 {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ---- stream adapter ----

// wsStream adapts a websocket connection to the Stream the session drives.
// Transport policy (frame type, length, rate) is enforced here so the core
// stays framing-agnostic.
type wsStream struct {
	conn *websocket.Conn
	rl   *RateLimiter
}

func newWSStream(conn *websocket.Conn, rl *RateLimiter) *wsStream {
	return &wsStream{conn: conn, rl: rl}
}

func (s *wsStream) ReadText(ctx context.Context) (string, error) {
	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	if typ != websocket.MessageText {
		return "", ErrNonTextFrame
	}
	if !s.rl.Allow(time.Now().UTC()) {
		return "", ErrRateLimited
	}
	if utf8.RuneCount(data) > maxMessageChars {
		return "", ErrMessageTooLong
	}
	return string(data), nil
}

func (s *wsStream) WriteText(ctx context.Context, text string) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, []byte(text))
}

// ---- origin policy ----

// checkOrigin admits requests without an Origin header (non-browser clients)
// and browsers whose origin matches the allowlist by full origin or by host.
func (g *Gateway) checkOrigin(r *http.Request) error {
	if g.allowAnyOrigin {
		return nil
	}

	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}

	host := originHost(origin)
	for _, allowed := range g.allowedOrigins {
		if origin == allowed {
			return nil
		}
		if host != "" && host == originHost(allowed) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHost extracts the lowercased host from a full origin, a host:port
// pair, or a bare host.
func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatterns derives the host patterns handed to websocket.Accept so its
// own origin check agrees with ours.
func originPatterns(allowed []string) []string {
	hosts := lo.Uniq(lo.FilterMap(allowed, func(a string, _ int) (string, bool) {
		h := originHost(a)
		return h, h != "" && h != "*"
	}))

	sort.Strings(hosts)
	return hosts
}
