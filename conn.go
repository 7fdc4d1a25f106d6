package framing

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Conn exchanges framed messages over a stream connection.
// It owns one Encoder and one Decoder and runs them in separate read and write loops.
type Conn struct {
	id      string
	rawConn net.Conn
	logger  Logger

	opts options

	encoder *Encoder
	decoder *Decoder
	readBuf []byte

	sendMsg chan []byte
	closed  atomic.Bool

	// stop is closed by Close and ends a running Run.
	stop     chan struct{}
	stopOnce sync.Once
}

// Default configuration values.
const (
	// defaultSendQueue is the default size of the send channel buffer.
	defaultSendQueue = 1
	// defaultMaxPackageLength is the default maximum size of a single message (1MB).
	defaultMaxPackageLength = 1024 * 1024
	// defaultHeartbeat is the default idle interval.
	defaultHeartbeat = 30 * time.Second
)

// NewConn creates a new framed connection around the given stream connection.
// It applies the provided options and validates them before returning.
// Returns an error if required options (onMessage) are missing or frame parameters are invalid.
func NewConn(conn net.Conn, opt ...Option) (*Conn, error) {
	opts := buildOptions(opt)

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts)
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.sendQueue <= 0 {
		opts.sendQueue = defaultSendQueue
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.heartbeat == 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.lengthBytes == 0 {
		opts.lengthBytes = defaultLengthBytes
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = int(min(uint64(defaultMaxPackageLength), MaxMessageLen(opts.lengthBytes)))
	}

	if opts.bufferSize == 0 {
		checksumBytes := opts.checksumBytes
		if checksumBytes == 0 {
			checksumBytes = defaultChecksumBytes
		}
		opts.bufferSize = FrameSize(opts.lengthBytes, checksumBytes, opts.maxReadLength)
	}

	return checkCodecOptions(opts)
}

// newConnWithOptions creates a new Conn with the given options.
func newConnWithOptions(c net.Conn, opts options) (*Conn, error) {
	id := uuid.New().String()
	opts.logger = withConnID(opts.logger, id)

	stream := NewStreamTransport(c, 0)

	enc, err := NewEncoder(stream, withOptions(opts))
	if err != nil {
		return nil, err
	}
	dec, err := NewDecoder(stream, withOptions(opts))
	if err != nil {
		return nil, err
	}

	return &Conn{
		id:      id,
		rawConn: c,
		logger:  opts.logger,
		opts:    opts,
		encoder: enc,
		decoder: dec,
		readBuf: make([]byte, opts.maxReadLength),
		sendMsg: make(chan []byte, opts.sendQueue),
		stop:    make(chan struct{}),
	}, nil
}

// withOptions replays already validated options.
func withOptions(src options) Option {
	return func(o *options) {
		*o = src
	}
}

// ID returns the connection identifier used in log records.
func (c *Conn) ID() string {
	return c.id
}

// Run starts the connection's read and write loops.
// It creates two goroutines for concurrent reading and writing,
// and blocks until an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"send_queue", c.opts.sendQueue,
		"max_read_length", c.opts.maxReadLength,
		"length_bytes", c.opts.lengthBytes,
		"checksum_bytes", c.opts.checksumBytes,
		"heartbeat", c.opts.heartbeat)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// Blocking reads only notice cancellation once the socket is closed.
	group.Go(func() error {
		select {
		case <-child.Done():
		case <-c.stop:
			cancel()
		}
		c.closeConn()
		return nil
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the connection.
// It stops a running Run, which then returns context.Canceled, and closes the
// underlying connection. Safe to call multiple times and concurrently with Run.
func (c *Conn) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.closed.Swap(true) {
		return nil // already closed
	}
	return c.rawConn.Close()
}

// stopped reports why the loops should exit after a failed socket operation,
// or nil when the failure is the connection's own.
func (c *Conn) stopped(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.stop:
		return context.Canceled
	default:
		return nil
	}
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// ErrBufferFull is returned when the send buffer is full and cannot accept more messages.
// This error indicates backpressure - the receiver is not consuming messages fast enough.
// Recommended handling strategies:
//   - Drop the message (for non-critical data like metrics)
//   - Use WriteBlocking or WriteTimeout to wait for buffer space
//   - Implement application-level flow control
var ErrBufferFull = errors.New("send buffer full")

// Write queues payload to be sent as one frame without blocking (fire-and-forget).
// The payload must not be modified until it has been sent.
//
// Returns:
//   - nil: message was successfully queued (not yet sent)
//   - ErrBufferFull: send buffer is full, message was NOT queued
//   - ErrConnectionClosed: connection is closed
//   - ErrMessageTooLarge: payload does not fit the length field
func (c *Conn) Write(payload []byte) error {
	if err := c.checkWrite(payload); err != nil {
		return err
	}

	select {
	case c.sendMsg <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues payload, blocking until the message is queued or the
// context is canceled.
//
// Returns:
//   - nil: message was successfully queued
//   - context.Canceled or context.DeadlineExceeded: context was canceled
//   - ErrConnectionClosed: connection is closed
//   - ErrMessageTooLarge: payload does not fit the length field
func (c *Conn) WriteBlocking(ctx context.Context, payload []byte) error {
	if err := c.checkWrite(payload); err != nil {
		return err
	}

	select {
	case c.sendMsg <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues payload, waiting at most timeout for buffer space.
//
// Returns:
//   - nil: message was successfully queued
//   - ErrBufferFull: timeout expired before message could be queued
//   - ErrConnectionClosed: connection is closed
//   - ErrMessageTooLarge: payload does not fit the length field
func (c *Conn) WriteTimeout(payload []byte, timeout time.Duration) error {
	if err := c.checkWrite(payload); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- payload:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

func (c *Conn) checkWrite(payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if uint64(len(payload)) > MaxMessageLen(c.opts.lengthBytes) {
		return ErrMessageTooLarge
	}
	return nil
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// Stats returns the decoder counters of this connection.
// It must not be called concurrently with Run.
func (c *Conn) Stats() Stats {
	return c.decoder.Stats()
}

// readLoop continuously decodes frames and hands payloads to the message handler.
// Short reads surface as ErrWouldBlock and simply resume the decoder.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_ = c.rawConn.SetReadDeadline(c.idleDeadline())

		n, err := c.decoder.Read(c.readBuf)
		if errors.Is(err, ErrWouldBlock) {
			continue
		}
		if err != nil {
			if stopErr := c.stopped(ctx); stopErr != nil {
				return stopErr
			}
			c.logger.Debug("read error", "addr", c.Addr(), "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
			continue
		}

		if err = c.opts.onMessage(c.readBuf[:n]); err != nil {
			return err
		}
	}
}

// writeLoop continuously encodes payloads from the send channel onto the connection.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-c.sendMsg:
			if err := c.write(payload); err != nil {
				return err
			}
		}
	}
}

// write sends one frame with a deadline.
// If an error occurs and onError returns Disconnect, the error is propagated.
// Otherwise, the error is suppressed and writing continues.
func (c *Conn) write(payload []byte) error {
	_ = c.rawConn.SetWriteDeadline(c.idleDeadline())

	_, err := c.encoder.Write(payload)

	if err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// idleDeadline returns the deadline for the next socket operation,
// or the zero time when idle timeouts are disabled.
func (c *Conn) idleDeadline() time.Time {
	if c.opts.heartbeat < 0 {
		return time.Time{}
	}
	return time.Now().Add(c.opts.heartbeat * 2)
}

// closeConn marks the connection as closed and closes the underlying connection.
func (c *Conn) closeConn() {
	if !c.closed.Swap(true) {
		c.rawConn.Close()
	}
}
