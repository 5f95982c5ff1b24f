package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	a := New(Config{
		Addr:           "127.0.0.1:0",
		LogLevel:       "error",
		LogFormat:      "json",
		AllowedOrigins: []string{"*"},
		BusCapacity:    16,
	}, testLogger())
	t.Cleanup(a.bus.Close)
	return a
}

func newTestServer(t *testing.T) (*App, *httptest.Server) {
	t.Helper()

	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAppHealthz(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)

	resp := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q want=%q", got, "nosniff")
	}
}

func TestAppReadyzFlipsOnShutdown(t *testing.T) {
	t.Parallel()

	a, srv := newTestServer(t)

	if resp := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusNoContent)
	}

	a.ready.Store(false)

	if resp := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestAppPresence(t *testing.T) {
	t.Parallel()

	a, srv := newTestServer(t)

	for _, name := range []string{"bob", "alice"} {
		if err := a.roster.Claim(name); err != nil {
			t.Fatalf("Claim(%q): %v", name, err)
		}
	}

	resp := get(t, srv.URL+"/presence")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type=%q", ct)
	}

	var body struct {
		Names []string `json:"names"`
		Count int      `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || len(body.Names) != 2 {
		t.Fatalf("count=%d names=%v want 2 names", body.Count, body.Names)
	}
	if body.Names[0] != "alice" || body.Names[1] != "bob" {
		t.Fatalf("names=%v want sorted [alice bob]", body.Names)
	}
}

func TestAppMetricsEndpoint(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)

	resp := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, want := range []string{"parley_sessions_total", "parley_bus_subscribers"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestAppServesChatPage(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)

	resp := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type=%q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, want := range []string{"<title>Parley</title>", "/ws"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

// The logging middleware wraps the ResponseWriter; this covers the upgrade
// path end to end so a wrapper that hides Hijacker cannot slip in.
func TestAppWebSocketThroughRouter(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte("router")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got, want := string(data), "router joined."; got != want {
		t.Fatalf("frame=%q want=%q", got, want)
	}
}
