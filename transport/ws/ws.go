// Package ws carries framed byte streams over WebSocket connections.
//
// The frame format is self-delimiting, so the transport treats the sequence
// of binary messages as one byte stream: a frame may span messages and a
// message may hold several frames. Each Transmit emits exactly one message.
package ws

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/Zereker/framing"
)

// Upgrader accepts any origin; put an authenticating proxy in front when that matters.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Transport adapts a *websocket.Conn to framing.Transport.
type Transport struct {
	conn *websocket.Conn

	// Receive side, used by one reader.
	r io.Reader

	wmu sync.Mutex
}

var _ framing.Transport = (*Transport)(nil)

// New wraps an established connection.
func New(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn}
}

// Dial connects to a ws:// or wss:// URL.
func Dial(ctx context.Context, url string) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket dial failed")
	}
	return New(conn), nil
}

// Upgrade upgrades an HTTP request with Upgrader.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Transport, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket upgrade failed")
	}
	return New(conn), nil
}

// Receive fills p from the current binary message, moving on to the next
// message when one is exhausted before anything was read. Text messages are
// skipped. It blocks while no message is available.
func (t *Transport) Receive(p []byte) (framing.Status, error) {
	n := 0
	for n < len(p) {
		if t.r == nil {
			if n > 0 {
				break
			}
			mt, r, err := t.conn.NextReader()
			if err != nil {
				return framing.Status{}, errors.WithStack(err)
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			t.r = r
		}

		m, err := t.r.Read(p[n:])
		n += m
		if err == io.EOF {
			t.r = nil
			continue
		}
		if err != nil {
			t.r = nil
			if n > 0 {
				return framing.Partial(n), nil
			}
			return framing.Status{}, errors.WithStack(err)
		}
	}

	if n == len(p) {
		return framing.Complete(), nil
	}
	return framing.Partial(n), nil
}

// Transmit writes all chunks as a single binary message.
func (t *Transport) Transmit(chunks ...[]byte) (framing.Status, error) {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	w, err := t.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return framing.Status{}, errors.WithStack(err)
	}
	for _, c := range chunks {
		if _, err := w.Write(c); err != nil {
			_ = w.Close()
			return framing.Status{}, errors.WithStack(err)
		}
	}
	if err := w.Close(); err != nil {
		return framing.Status{}, errors.WithStack(err)
	}
	return framing.Complete(), nil
}

// Close sends a normal closure and closes the connection.
func (t *Transport) Close() error {
	t.wmu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.wmu.Unlock()
	return t.conn.Close()
}
