package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// The upgrade accepts every origin: the handshake Origin header is passed
// up with each event and the messenger's allow-list decides.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket is a Transport over one websocket connection.
type WebSocket struct {
	conn        *websocket.Conn
	origin      string
	messageType int
	events      chan Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Upgrade accepts a websocket handshake. Inbound events carry the
// handshake's Origin header.
func Upgrade(w http.ResponseWriter, r *http.Request, binary bool) (*WebSocket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newWebSocket(conn, r.Header.Get("Origin"), binary), nil
}

// Dial connects to a websocket endpoint presenting origin in the handshake.
// Inbound events are labelled with the dialled server's origin.
func Dial(ctx context.Context, rawURL, origin string, binary bool) (*WebSocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return newWebSocket(conn, ServerOrigin(u), binary), nil
}

// ServerOrigin returns the web origin of a ws:// or wss:// URL.
func ServerOrigin(u *url.URL) string {
	scheme := "http"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

func newWebSocket(conn *websocket.Conn, origin string, binary bool) *WebSocket {
	conn.SetReadLimit(MaxFrameSize)
	ws := &WebSocket{
		conn:        conn,
		origin:      origin,
		messageType: websocket.TextMessage,
		events:      make(chan Event, 16),
		closed:      make(chan struct{}),
	}
	if binary {
		ws.messageType = websocket.BinaryMessage
	}
	go ws.readLoop()
	return ws
}

func (ws *WebSocket) readLoop() {
	defer close(ws.events)
	for {
		_, payload, err := ws.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case ws.events <- Event{Payload: payload, Origin: ws.origin}:
		case <-ws.closed:
			return
		}
	}
}

// Origin returns the origin inbound events are labelled with.
func (ws *WebSocket) Origin() string {
	return ws.origin
}

// Send writes payload as one websocket message.
func (ws *WebSocket) Send(payload []byte) error {
	select {
	case <-ws.closed:
		return ErrClosed
	default:
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.conn.WriteMessage(ws.messageType, payload)
}

// Events implements Transport.
func (ws *WebSocket) Events() <-chan Event {
	return ws.events
}

// Close sends a close frame and tears the connection down.
func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.closed)
		ws.writeMu.Lock()
		ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.writeMu.Unlock()
		err = ws.conn.Close()
	})
	return err
}
