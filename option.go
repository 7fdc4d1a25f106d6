package framing

import (
	"time"

	"github.com/pkg/errors"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration shared by encoders, decoders and connections.
type options struct {
	lengthBytes   int
	checksumBytes int
	digest        Digest
	bufferSize    int // decoder accumulation capacity (BUF_SIZE)

	before func()
	after  func()

	logger Logger

	onMessage func(payload []byte) error
	// onError is called when a connection read/write error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	sendQueue     int           // size of buffered send channel
	maxReadLength int           // decoder output capacity
	heartbeat     time.Duration // idle interval for read/write deadlines
}

// Option is a function that configures codec and connection options.
type Option func(*options)

// LengthBytesOption sets the width P of the length field, between 1 and 8 bytes.
// It also bounds the largest message: len(msg) < 2^(8P).
func LengthBytesOption(n int) Option {
	return func(o *options) {
		o.lengthBytes = n
	}
}

// ChecksumBytesOption sets the width C of the payload checksum, between 1 and 32 bytes.
func ChecksumBytesOption(n int) Option {
	return func(o *options) {
		o.checksumBytes = n
	}
}

// DigestOption sets the digest both checksums are derived from. Default is SHA256.
func DigestOption(d Digest) Option {
	return func(o *options) {
		o.digest = d
	}
}

// BufferSizeOption sets the decoder's accumulation capacity.
// A frame larger than this cannot be received and fails with ErrBufferOverflow.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HooksOption sets callbacks run once before and once after every top-level Read or Write.
// The decoder runs after only when a frame validated. Either may be nil.
func HooksOption(before, after func()) Option {
	return func(o *options) {
		o.before = before
		o.after = after
	}
}

// LoggerOption sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// SendQueueOption sets the size of a connection's send channel buffer.
// A larger buffer allows more messages to be queued before blocking.
func SendQueueOption(size int) Option {
	return func(o *options) {
		o.sendQueue = size
	}
}

// NoHeartbeat passed to HeartbeatOption lets a connection stay idle indefinitely.
const NoHeartbeat time.Duration = -1

// HeartbeatOption sets the idle interval of a connection.
// Reads and writes fail after heartbeat * 2 without progress.
// NoHeartbeat disables the idle deadline; zero selects the 30s default.
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// MessageMaxSize sets the largest payload a connection accepts.
// Incoming frames announcing a larger payload are dropped and the decoder resynchronizes.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// OnErrorOption sets the error callback.
// The callback is invoked when a read/write error occurs.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption sets the message handler callback.
// This callback is required for connections and is invoked for each decoded payload.
// The payload slice is only valid for the duration of the call.
func OnMessageOption(cb func(payload []byte) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

func buildOptions(opt []Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// checkCodecOptions validates and sets default values for frame parameters.
func checkCodecOptions(opts *options) error {
	if opts.lengthBytes == 0 {
		opts.lengthBytes = defaultLengthBytes
	}

	if opts.checksumBytes == 0 {
		opts.checksumBytes = defaultChecksumBytes
	}

	if err := validateParams(opts.lengthBytes, opts.checksumBytes); err != nil {
		return err
	}

	if opts.digest == nil {
		opts.digest = SHA256
	}

	if opts.bufferSize == 0 {
		opts.bufferSize = defaultBufferSize
	}

	if floor := FrameSize(opts.lengthBytes, opts.checksumBytes, 0); opts.bufferSize < floor {
		return errors.Wrapf(ErrInvalidParams, "buffer size %d smaller than empty frame (%d)", opts.bufferSize, floor)
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}
