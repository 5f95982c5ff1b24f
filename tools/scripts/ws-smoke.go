// Package main provides a CI-friendly WebSocket smoke test for a running
// Parley server.
//
// It validates:
//   - handshake on /ws
//   - name claim + self join echo
//   - join fanout to another client
//   - message fanout, sender included
//   - duplicate name rejection with policy-violation close
//   - leave fanout on disconnect
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const maxReadBytes = 64 << 10

type smokeClient struct {
	label string
	name  string
	conn  *websocket.Conn

	inbox chan string
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "", "Origin header to send (empty for a non-browser handshake)")
		text    = flag.String("text", "smoke check", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	run := time.Now().UnixNano() % 1_000_000

	a := mustConnect(root, "A", fmt.Sprintf("smoke-a-%d", run), *wsURL, *origin, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", fmt.Sprintf("smoke-b-%d", run), *wsURL, *origin, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s origin=%q\n", a.name, b.name, *origin)
	}

	mustClaim(root, a, *timeout)
	mustClaim(root, b, *timeout)

	// A was already in the room, so B's join fans out to it.
	mustReceive(root, a, b.name+" joined.", *timeout)

	mustSend(root, a, *text, *timeout)
	want := a.name + ": " + *text
	mustReceive(root, a, want, *timeout)
	mustReceive(root, b, want, *timeout)

	mustRejectDuplicate(root, a.name, *wsURL, *origin, *timeout)

	closeWS(b.conn)
	mustReceive(root, a, b.name+" left.", *timeout)

	fmt.Printf("OK: A=%s B=%s url=%s\n", a.name, b.name, *wsURL)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func dialWS(parent context.Context, wsURL, origin string, stepTimeout time.Duration) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxReadBytes)
	return conn, nil
}

func mustConnect(parent context.Context, label, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	conn, err := dialWS(parent, wsURL, origin, stepTimeout)
	if err != nil {
		fatalf("connect %s: %v", label, err)
	}

	c := &smokeClient{
		label: label,
		name:  name,
		conn:  conn,
		inbox: make(chan string, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			select {
			case c.inbox <- string(data):
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

// mustClaim sends the client's name and waits for its own join echo.
func mustClaim(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	mustWrite(parent, c, c.name, stepTimeout)
	mustReceive(parent, c, c.name+" joined.", stepTimeout)
}

func mustSend(parent context.Context, c *smokeClient, text string, stepTimeout time.Duration) {
	mustWrite(parent, c, text, stepTimeout)
}

func mustWrite(parent context.Context, c *smokeClient, text string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		fatalf("write %q (%s): %v", text, c.label, err)
	}
}

// mustReceive waits for an exact frame, skipping unrelated chatter so the
// probe also passes against a busy room.
func mustReceive(parent context.Context, c *smokeClient, want string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", want, c.label, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", want, c.label, err)
		case line, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", want, c.label)
			}
			if line == want {
				return
			}
		}
	}
}

// mustRejectDuplicate dials a fresh connection, claims a taken name, and
// requires the rejection notice followed by a policy-violation close.
func mustRejectDuplicate(parent context.Context, takenName, wsURL, origin string, stepTimeout time.Duration) {
	conn, err := dialWS(parent, wsURL, origin, stepTimeout)
	if err != nil {
		fatalf("connect dup: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte(takenName)); err != nil {
		fatalf("write dup name: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read rejection notice: %v", err)
	}
	if got := string(data); got != "Username already taken." {
		fatalf("rejection notice mismatch: got=%q", got)
	}

	_, _, err = conn.Read(ctx)
	if err == nil {
		fatalf("expected close after rejection, got another frame")
	}
	if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
		fatalf("close status mismatch: got=%v want=%v", status, websocket.StatusPolicyViolation)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
