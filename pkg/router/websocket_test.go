package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type wsEvent struct {
	code   int
	reason string
	connID string
}

func newWSServer(t *testing.T) (*httptest.Server, chan wsEvent) {
	t.Helper()
	closed := make(chan wsEvent, 1)

	r := newTestRouter()
	r.WS("/rooms/:room", WSHandler{
		OnOpen: func(c *WSConn) {
			c.Set("greeted", true)
			_ = c.SendText("welcome to " + c.Params["room"])
		},
		OnMessage: func(c *WSConn, typ MessageType, payload []byte) {
			if string(payload) == "json" {
				_ = c.SendJSON(map[string]string{"id": c.ID})
				return
			}
			_ = c.Send(typ, append([]byte("echo:"), payload...))
		},
		OnClose: func(c *WSConn, code int, reason string) {
			closed <- wsEvent{code: code, reason: reason, connID: c.ID}
		},
	})
	r.Get("/rooms/:room", func(c *Context) (any, error) {
		return "plain " + c.Param("room"), nil
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, closed
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv, closed := newWSServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/rooms/lobby"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.CloseNow()

	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read greeting: %v", err)
	}
	if string(msg) != "welcome to lobby" {
		t.Errorf("Expected greeting with the room param, got %q", msg)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("hi")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	typ, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read echo: %v", err)
	}
	if typ != websocket.MessageText || string(msg) != "echo:hi" {
		t.Errorf("Expected text echo, got %v %q", typ, msg)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("json")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	var info map[string]string
	if err := wsjson.Read(ctx, conn, &info); err != nil {
		t.Fatalf("Failed to read JSON: %v", err)
	}
	if info["id"] == "" {
		t.Error("Expected the connection to carry an ID")
	}

	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	select {
	case ev := <-closed:
		if ev.code != CloseNormal || ev.reason != "bye" {
			t.Errorf("Expected close 1000 bye, got %d %q", ev.code, ev.reason)
		}
		if ev.connID != info["id"] {
			t.Errorf("Expected close for connection %q, got %q", info["id"], ev.connID)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for OnClose")
	}
}

func TestWebSocketRouteFallsThroughForPlainRequests(t *testing.T) {
	srv, _ := newWSServer(t)

	resp, err := http.Get(srv.URL + "/rooms/lobby")
	if err != nil {
		t.Fatalf("Failed to GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestWebSocketUpgradeWithoutRoute(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestWebSocketBadHandshake(t *testing.T) {
	r := newTestRouter()
	opened := false
	r.WS("/ws", WSHandler{OnOpen: func(c *WSConn) { opened = true }})

	// Missing Sec-WebSocket-Key and version.
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if opened {
		t.Error("Expected OnOpen not to run after a failed upgrade")
	}
}

func TestShutdownClosesWebSockets(t *testing.T) {
	srv, closed := newWSServer(t)
	r := srv.Config.Handler.(*Router)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/rooms/a"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.CloseNow()
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read greeting: %v", err)
	}

	// Keep reading so the client answers the close handshake.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Expected shutdown to succeed, got %v", err)
	}

	select {
	case ev := <-closed:
		if ev.code != CloseGoingAway {
			t.Errorf("Expected close code %d, got %d", CloseGoingAway, ev.code)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for OnClose")
	}
}
