package framing

import "github.com/pkg/errors"

// ErrWouldBlock reports that the transport has no data (or no room) right now.
// It is not a failure: call again later and no state is lost.
var ErrWouldBlock = errors.New("framing: would block")

// ErrInvalidStatus is returned when a transport reports a partial count outside the requested range.
var ErrInvalidStatus = errors.New("framing: transport reported invalid byte count")

// Status is the outcome of a successful Receive or Transmit.
type Status struct {
	n       int
	partial bool
}

// Complete reports that every requested byte was transferred.
func Complete() Status {
	return Status{}
}

// Partial reports that only the first n requested bytes were transferred.
func Partial(n int) Status {
	return Status{n: n, partial: true}
}

// IsComplete reports whether the transfer covered the whole request.
func (s Status) IsComplete() bool {
	return !s.partial
}

// N returns the number of valid bytes of a partial transfer. It is zero for Complete.
func (s Status) N() int {
	return s.n
}

// Receiver is the read half of a transport capability.
//
// Receive tries to fill p. It returns Complete only when all of p was written,
// Partial(n) when exactly the first n bytes are valid, ErrWouldBlock when nothing
// is available, or any other error for a transport failure.
type Receiver interface {
	Receive(p []byte) (Status, error)
}

// Transmitter is the write half of a transport capability.
//
// Transmit sends the chunks as one logically concatenated byte sequence.
// Implementations must not retain the chunks after returning.
type Transmitter interface {
	Transmit(chunks ...[]byte) (Status, error)
}

// Transport moves bytes in both directions.
type Transport interface {
	Receiver
	Transmitter
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(p []byte) (Status, error)

// Receive calls f(p).
func (f ReceiverFunc) Receive(p []byte) (Status, error) {
	return f(p)
}

// TransmitterFunc adapts a function to the Transmitter interface.
type TransmitterFunc func(chunks ...[]byte) (Status, error)

// Transmit calls f(chunks...).
func (f TransmitterFunc) Transmit(chunks ...[]byte) (Status, error) {
	return f(chunks...)
}

// Compile-time interface satisfaction checks.
var (
	_ Receiver    = ReceiverFunc(nil)
	_ Transmitter = TransmitterFunc(nil)
	_ Transport   = (*StreamTransport)(nil)
)
