package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageType is the type of a WebSocket data message.
type MessageType = websocket.MessageType

// WebSocket message types.
const (
	MessageText   = websocket.MessageText
	MessageBinary = websocket.MessageBinary
)

// WebSocket close codes commonly passed to WSConn.Close.
const (
	CloseNormal        = int(websocket.StatusNormalClosure)
	CloseGoingAway     = int(websocket.StatusGoingAway)
	ClosePolicy        = int(websocket.StatusPolicyViolation)
	CloseInternalError = int(websocket.StatusInternalError)
)

// WSHandler holds the per-connection callbacks of a WebSocket route. Every
// callback is optional. Callbacks of one connection run sequentially on
// the connection's goroutine.
type WSHandler struct {
	OnOpen    func(conn *WSConn)
	OnMessage func(conn *WSConn, typ MessageType, payload []byte)
	OnClose   func(conn *WSConn, code int, reason string)
	OnError   func(conn *WSConn, err error)
}

// WSConn is an upgraded WebSocket connection together with the route
// metadata bound at upgrade time.
type WSConn struct {
	ID      string
	Params  map[string]string
	Request *http.Request

	conn *websocket.Conn
	ctx  context.Context

	mu     sync.RWMutex
	values map[string]any
}

// Context returns the connection's context. It is canceled when the
// connection's read loop ends.
func (c *WSConn) Context() context.Context {
	return c.ctx
}

// Subprotocol returns the negotiated subprotocol, if any.
func (c *WSConn) Subprotocol() string {
	return c.conn.Subprotocol()
}

// Send writes a message of the given type.
func (c *WSConn) Send(typ MessageType, payload []byte) error {
	return c.conn.Write(c.ctx, typ, payload)
}

// SendText writes a text message.
func (c *WSConn) SendText(text string) error {
	return c.conn.Write(c.ctx, websocket.MessageText, []byte(text))
}

// SendJSON writes v as a JSON text message.
func (c *WSConn) SendJSON(v any) error {
	return wsjson.Write(c.ctx, c.conn, v)
}

// Close performs the closing handshake with the given code and reason.
func (c *WSConn) Close(code int, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}

// Set stores per-connection metadata.
func (c *WSConn) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns per-connection metadata.
func (c *WSConn) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// isWebSocketUpgrade checks if the request is a WebSocket upgrade request.
func isWebSocketUpgrade(r *http.Request) bool {
	// Check Connection header
	if !strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") {
		return false
	}

	// Check Upgrade header
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// serveWS upgrades the connection and runs its read loop until the peer
// goes away. The websocket library answers rejected handshakes itself.
func (r *Router) serveWS(w http.ResponseWriter, req *http.Request, route *WSRoute, params map[string]string) {
	cfg := r.config.WebSocket
	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		Subprotocols:       cfg.Subprotocols,
		OriginPatterns:     cfg.OriginPatterns,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		r.logger.Warn("WebSocket upgrade failed", r.requestFields(req,
			zap.String("route", route.Pattern.String()),
			zap.Error(fmt.Errorf("%w: %v", ErrUpgradeFailed, err)),
		)...)
		return
	}
	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	if params == nil {
		params = map[string]string{}
	}
	wc := &WSConn{
		ID:      uuid.NewString(),
		Params:  params,
		Request: req,
		conn:    conn,
		ctx:     ctx,
	}

	r.trackWS(wc, true)
	defer r.trackWS(wc, false)

	logger := r.logger.With(zap.String("conn_id", wc.ID), zap.String("route", route.Pattern.String()))
	logger.Debug("WebSocket connection opened")

	h := route.Handler
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Panic in WebSocket handler", zap.Any("panic", rec))
			_ = conn.Close(websocket.StatusInternalError, "internal error")
		}
	}()

	if h.OnOpen != nil {
		h.OnOpen(wc)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			code, reason := closeInfo(err)
			if code == websocket.StatusAbnormalClosure && ctx.Err() == nil && !errors.Is(err, io.EOF) {
				if h.OnError != nil {
					h.OnError(wc, err)
				}
			}
			if h.OnClose != nil {
				h.OnClose(wc, int(code), reason)
			}
			_ = conn.CloseNow()
			logger.Debug("WebSocket connection closed", zap.Int("code", int(code)), zap.String("reason", reason))
			return
		}
		if h.OnMessage != nil {
			h.OnMessage(wc, typ, data)
		}
	}
}

// closeInfo extracts the close code and reason from a read error. Errors
// that are not a close frame report StatusAbnormalClosure.
func closeInfo(err error) (websocket.StatusCode, string) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason
	}
	return websocket.StatusAbnormalClosure, ""
}

func (r *Router) trackWS(c *WSConn, add bool) {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()
	if add {
		if r.wsConns == nil {
			r.wsConns = make(map[*WSConn]struct{})
		}
		r.wsConns[c] = struct{}{}
		return
	}
	delete(r.wsConns, c)
}

// closeWebSockets closes every open connection with StatusGoingAway.
func (r *Router) closeWebSockets() {
	r.wsMu.Lock()
	conns := make([]*WSConn, 0, len(r.wsConns))
	for c := range r.wsConns {
		conns = append(conns, c)
	}
	r.wsMu.Unlock()

	for _, c := range conns {
		_ = c.Close(CloseGoingAway, "server shutting down")
	}
}
