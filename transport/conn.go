package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// readLimit matches the 1 MB message cap of socket.io, so a pasted block arrives as one input event.
const readLimit = 1 << 20

// writeLimit bounds the payload of a single event.
// JSON escaping of control characters can expand a byte up to six, so this leaves room under readLimit.
// It stays well above the 32 KiB reads exec uses to copy a subprocess pipe, so one read is one event.
const writeLimit = readLimit / 8

// ErrDisconnected is returned by Read when the peer closed the connection.
var ErrDisconnected = errors.New("transport disconnected")

// Conn is one end of the event link.
// Send may be called concurrently, Read may not.
type Conn struct {
	log  *zap.SugaredLogger
	conn *websocket.Conn

	closeConnOnce sync.Once
}

func newConn(log *zap.SugaredLogger, wsConn *websocket.Conn) *Conn {
	wsConn.SetReadLimit(readLimit)
	return &Conn{log: log, conn: wsConn}
}

// Accept upgrades an HTTP request into the server side of a Conn.
// On failure an HTTP error has already been written to w.
func Accept(w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger) (*Conn, error) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("accepting WebSocket conn: %w", err)
	}
	log.Debug("accepted WebSocket conn")
	return newConn(log, wsConn), nil
}

// Dial opens the client side of a Conn. A successful Dial is the client's "connect" notification.
func Dial(ctx context.Context, url string, httpClient *http.Client, log *zap.SugaredLogger) (*Conn, error) {
	log.Debugw("dialing WebSocket", "URL", url)
	wsConn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:      httpClient,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("establishing WebSocket conn: %w", err)
	}
	return newConn(log, wsConn), nil
}

// Send writes ev to the peer. Payloads larger than the write limit are split into consecutive events of the same type.
func (c *Conn) Send(ctx context.Context, ev Event) error {
	leftToWrite := ev.Data
	for {
		toWrite := leftToWrite
		more := false
		if len(leftToWrite) > writeLimit {
			n := writeLimit
			// don't split a multi-byte rune across two events
			for n > 0 && !utf8.RuneStart(leftToWrite[n]) {
				n--
			}
			if n == 0 {
				n = writeLimit
			}
			toWrite = leftToWrite[:n]
			leftToWrite = leftToWrite[n:]
			more = true
		}

		err := wsjson.Write(ctx, c.conn, Event{Type: ev.Type, Data: toWrite})
		if err != nil {
			return fmt.Errorf("writing %s event: %w", ev.Type, err)
		}
		if !more {
			return nil
		}
	}
}

// Read blocks until the next event arrives.
// A closed connection yields an error wrapping ErrDisconnected.
func (c *Conn) Read(ctx context.Context) (Event, error) {
	var ev Event
	err := wsjson.Read(ctx, c.conn, &ev)
	if err == nil {
		return ev, nil
	}
	if websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF) {
		return Event{}, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return Event{}, err
}

// Close closes the connection with the given status. Only the first call has any effect.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	// websocket reason can't be above 123 chars
	if len(reason) > 100 {
		reason = reason[0:100]
	}
	c.closeConnOnce.Do(func() {
		err := c.conn.Close(code, reason)
		if err != nil {
			c.log.Debugf("error closing conn: %s", err)
		}
	})
}
