package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// newTestGateway boots a gateway over fresh shared state and returns the
// ws:// URL to dial.
func newTestGateway(t *testing.T, cfg GatewayConfig) (wsURL string, roster *Roster, bus *Bus) {
	t.Helper()

	roster = NewRoster()
	bus = NewBus(DefaultBusCapacity)
	t.Cleanup(bus.Close)

	g := NewGateway(testLogger(), roster, bus, nil, cfg)
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), roster, bus
}

func dialPeer(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		t.Fatalf("write %q: %v", text, err)
	}
}

func sendBinary(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		t.Fatalf("write binary: %v", err)
	}
}

func recvText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("frame type=%v want=%v", typ, websocket.MessageText)
	}
	return string(data)
}

func wantText(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()

	if got := recvText(t, conn); got != want {
		t.Fatalf("frame=%q want=%q", got, want)
	}
}

// readUntilClose drains remaining text frames until the peer closes the
// connection and returns the close status.
func readUntilClose(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()

	for range 100 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _, err := conn.Read(ctx)
		cancel()
		if err == nil {
			continue
		}
		status := websocket.CloseStatus(err)
		if status == -1 {
			t.Fatalf("read ended without close status: %v", err)
		}
		return status
	}
	t.Fatal("no close frame after 100 reads")
	return -1
}

func TestGatewayConversationFlow(t *testing.T) {
	t.Parallel()

	wsURL, roster, _ := newTestGateway(t, GatewayConfig{})

	alice := dialPeer(t, wsURL)
	sendText(t, alice, "alice")
	wantText(t, alice, "alice joined.")

	bob := dialPeer(t, wsURL)
	sendText(t, bob, "bob")
	wantText(t, bob, "bob joined.")
	wantText(t, alice, "bob joined.")

	sendText(t, bob, "hi")
	wantText(t, bob, "bob: hi")
	wantText(t, alice, "bob: hi")

	if err := bob.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Fatalf("close bob: %v", err)
	}
	wantText(t, alice, "bob left.")

	waitFor(t, func() bool { return !roster.Contains("bob") })
	if !roster.Contains("alice") {
		t.Fatal("alice reservation dropped with the session still open")
	}
}

func TestGatewayRejectsDuplicateNameOverWire(t *testing.T) {
	t.Parallel()

	wsURL, _, _ := newTestGateway(t, GatewayConfig{})

	alice := dialPeer(t, wsURL)
	sendText(t, alice, "alice")
	wantText(t, alice, "alice joined.")

	imposter := dialPeer(t, wsURL)
	sendText(t, imposter, "alice")
	wantText(t, imposter, "Username already taken.")

	if status := readUntilClose(t, imposter); status != websocket.StatusPolicyViolation {
		t.Fatalf("close status=%v want=%v", status, websocket.StatusPolicyViolation)
	}

	// The holder is untouched by the rejected attempt.
	sendText(t, alice, "still here")
	wantText(t, alice, "alice: still here")
}

func TestGatewayOriginPolicy(t *testing.T) {
	t.Parallel()

	wsURL, _, _ := newTestGateway(t, GatewayConfig{})
	host := strings.TrimPrefix(wsURL, "ws://")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example"}},
	})
	if err == nil {
		_ = conn.CloseNow()
		t.Fatal("dial with disallowed origin succeeded")
	}

	// A matching origin passes both ours and the library's check.
	conn, _, err = websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://" + host}},
	})
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	defer conn.CloseNow()

	sendText(t, conn, "browser")
	wantText(t, conn, "browser joined.")
}

func TestGatewayShutdownClosesSessions(t *testing.T) {
	t.Parallel()

	wsURL, roster, bus := newTestGateway(t, GatewayConfig{})

	conn := dialPeer(t, wsURL)
	sendText(t, conn, "zed")
	wantText(t, conn, "zed joined.")

	bus.Close()

	if status := readUntilClose(t, conn); status != websocket.StatusGoingAway {
		t.Fatalf("close status=%v want=%v", status, websocket.StatusGoingAway)
	}
	waitFor(t, func() bool { return roster.Len() == 0 })
}

func TestGatewayRateLimitClosesSession(t *testing.T) {
	t.Parallel()

	wsURL, _, _ := newTestGateway(t, GatewayConfig{RateLimit: 3, RateWindow: time.Minute})

	conn := dialPeer(t, wsURL)
	sendText(t, conn, "chatty")
	wantText(t, conn, "chatty joined.")

	// The naming frame spent one budget slot; two more fit, the fourth
	// frame trips the limit.
	sendText(t, conn, "one")
	sendText(t, conn, "two")
	sendText(t, conn, "three")

	if status := readUntilClose(t, conn); status != websocket.StatusPolicyViolation {
		t.Fatalf("close status=%v want=%v", status, websocket.StatusPolicyViolation)
	}
}

func TestGatewayMessageTooLongClosesSession(t *testing.T) {
	t.Parallel()

	wsURL, _, _ := newTestGateway(t, GatewayConfig{})

	conn := dialPeer(t, wsURL)
	sendText(t, conn, "big")
	wantText(t, conn, "big joined.")

	sendText(t, conn, strings.Repeat("x", maxMessageChars+1))

	if status := readUntilClose(t, conn); status != websocket.StatusMessageTooBig {
		t.Fatalf("close status=%v want=%v", status, websocket.StatusMessageTooBig)
	}
}

func TestGatewayBinaryFrames(t *testing.T) {
	t.Parallel()

	wsURL, _, _ := newTestGateway(t, GatewayConfig{})

	conn := dialPeer(t, wsURL)

	// Before naming, non-text frames are skipped so the next text frame
	// still claims the name.
	sendBinary(t, conn, []byte{0x01, 0x02})
	sendText(t, conn, "mixed")
	wantText(t, conn, "mixed joined.")

	// Once active they end the session.
	sendBinary(t, conn, []byte{0x03})

	if status := readUntilClose(t, conn); status != websocket.StatusUnsupportedData {
		t.Fatalf("close status=%v want=%v", status, websocket.StatusUnsupportedData)
	}
}
