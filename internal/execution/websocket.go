package execution

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WebsocketDialer connects to the interactive service at BaseURL/{language}.
type WebsocketDialer struct {
	BaseURL          string
	HandshakeTimeout time.Duration
	Header           http.Header
}

// NewWebsocketDialer creates a dialer for a ws:// or wss:// base URL.
func NewWebsocketDialer(baseURL string) *WebsocketDialer {
	return &WebsocketDialer{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		HandshakeTimeout: 10 * time.Second,
	}
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, language string) (Conn, error) {
	target := d.BaseURL + "/" + url.PathEscape(language)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	c, resp, err := dialer.DialContext(ctx, target, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteText(msg string) error {
	return w.c.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (w *wsConn) ReadFrame() (string, error) {
	for {
		kind, data, err := w.c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNoStatusReceived {
				return "", io.EOF
			}
			return "", err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (w *wsConn) Close() error {
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	return w.c.Close()
}
