package framing

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

// StreamTransport adapts an io.ReadWriter (socket, serial device, pipe) to Transport.
//
// Each Receive issues a single Read. When a poll interval is set and the stream
// supports deadlines, a Read that times out without data reports ErrWouldBlock,
// so the decoder never waits longer than the poll interval. Without a poll
// interval, deadline expiry is returned as an error.
type StreamTransport struct {
	rw   io.ReadWriter
	poll time.Duration

	bufs [8][]byte
}

// NewStreamTransport wraps rw. A poll of zero lets Receive block until data arrives.
func NewStreamTransport(rw io.ReadWriter, poll time.Duration) *StreamTransport {
	return &StreamTransport{rw: rw, poll: poll}
}

// Receive reads into p once.
func (s *StreamTransport) Receive(p []byte) (Status, error) {
	if len(p) == 0 {
		return Complete(), nil
	}

	if dr, ok := s.rw.(deadlineReader); ok && s.poll > 0 {
		_ = dr.SetReadDeadline(time.Now().Add(s.poll))
	}

	n, err := s.rw.Read(p)
	if n == len(p) {
		return Complete(), nil
	}
	if err != nil && !s.wouldBlock(err) {
		if n > 0 {
			// Keep what arrived; the error resurfaces on the next Read.
			return Partial(n), nil
		}
		return Status{}, err
	}
	if n == 0 {
		return Status{}, ErrWouldBlock
	}
	return Partial(n), nil
}

// Transmit writes all chunks with a single vectored write where the stream supports it.
func (s *StreamTransport) Transmit(chunks ...[]byte) (Status, error) {
	if dw, ok := s.rw.(deadlineWriter); ok && s.poll > 0 {
		_ = dw.SetWriteDeadline(time.Now().Add(s.poll))
	}

	var total int64
	for _, c := range chunks {
		total += int64(len(c))
	}

	bufs := net.Buffers(append(s.bufs[:0], chunks...))
	n, err := bufs.WriteTo(s.rw)
	clear(s.bufs[:])

	if n == total {
		return Complete(), nil
	}
	if n > 0 {
		return Partial(int(n)), nil
	}
	if err == nil {
		return Partial(0), nil
	}
	if s.wouldBlock(err) {
		return Status{}, ErrWouldBlock
	}
	return Status{}, errors.WithStack(err)
}

// wouldBlock reports whether err is the expiry of our own poll deadline.
// Without a poll interval a timeout is a real failure (an idle deadline set by the owner).
func (s *StreamTransport) wouldBlock(err error) bool {
	return s.poll > 0 && isTimeout(err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
