// Package stream wraps gorilla/websocket behind the small surface the
// readers need, so tests can substitute scripted connections.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"marketview/config"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	controlWriteWait        = time.Second
)

// Conn is a read-only websocket connection.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials real websocket connections.
type WebsocketDialer struct {
	handshakeTimeout time.Duration
	readTimeout      time.Duration
}

func NewDialer(cfg config.StreamConfig) *WebsocketDialer {
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	return &WebsocketDialer{handshakeTimeout: handshake, readTimeout: cfg.ReadTimeout}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newConn(conn, d.readTimeout), nil
}

type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

// newConn answers server pings with pongs and pushes the read deadline
// forward on every ping and message.
func newConn(conn *websocket.Conn, readTimeout time.Duration) *wsConn {
	c := &wsConn{conn: conn, readTimeout: readTimeout}
	conn.SetPingHandler(func(appData string) error {
		c.extendDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return c
}

func (c *wsConn) extendDeadline() {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	c.extendDeadline()
	return c.conn.ReadMessage()
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// IsNormalClose reports whether err is an orderly close from the peer.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
