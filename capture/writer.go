package capture

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// ErrClosed is returned when recording into a closed Writer.
var ErrClosed = errors.New("capture writer closed")

// Writer appends Events to a stream. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	encoder *cbor.Encoder
	closed  bool
	count   int
}

// NewWriter returns a Writer encoding onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, encoder: encMode.NewEncoder(w)}
}

// Create opens path for appending, creating it with mode 0644 if needed.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open capture file")
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// Record writes one payload as an Event.
func (w *Writer) Record(connID string, dir Direction, payload []byte) error {
	return w.Write(NewEvent(connID, dir, payload))
}

// RecordFrom writes one payload exchanged with the peer at remote.
func (w *Writer) RecordFrom(connID, remote string, dir Direction, payload []byte) error {
	e := NewEvent(connID, dir, payload)
	e.RemoteAddr = remote
	return w.Write(e)
}

// Write writes a prepared Event.
func (w *Writer) Write(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.encoder.Encode(e); err != nil {
		return errors.Wrap(err, "encode capture event")
	}
	w.count++
	return nil
}

// Count returns the number of events written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the underlying file if the Writer opened it.
// Safe to call multiple times.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
