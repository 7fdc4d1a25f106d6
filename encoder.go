package framing

import (
	"github.com/pkg/errors"
)

// Errors returned by encoding operations.
var (
	// ErrMessageTooLarge is returned when a message does not fit in the length field.
	ErrMessageTooLarge = errors.New("framing: message too large for length field")
	// ErrOutputSize is returned by EncodeInto when the output is not exactly one frame long.
	ErrOutputSize = errors.New("framing: output size does not match frame size")
)

// Encoder builds frames and hands each one to a Transmitter.
// It keeps no state between calls. An Encoder is not safe for concurrent use.
type Encoder struct {
	tx     Transmitter
	opts   options
	logger Logger

	magic  [1]byte
	lenBuf [MaxLengthBytes]byte
	lenSum [DigestSize]byte
	msgSum [DigestSize]byte
	chunks [5][]byte
}

// NewEncoder creates an encoder writing to tx.
func NewEncoder(tx Transmitter, opt ...Option) (*Encoder, error) {
	if tx == nil {
		return nil, errors.New("framing: nil transmitter")
	}

	opts := buildOptions(opt)
	if err := checkCodecOptions(&opts); err != nil {
		return nil, err
	}

	return &Encoder{
		tx:     tx,
		opts:   opts,
		logger: opts.logger,
		magic:  [1]byte{Magic},
	}, nil
}

// FrameSize returns the encoded size of a message of msgLen bytes with this encoder's parameters.
func (e *Encoder) FrameSize(msgLen int) int {
	return FrameSize(e.opts.lengthBytes, e.opts.checksumBytes, msgLen)
}

// Write encodes msg as one frame and makes exactly one Transmit call.
//
// Returns:
//   - len(msg), nil: the frame was handed to the transport
//   - ErrMessageTooLarge: msg does not fit the length field; nothing was transmitted
//   - ErrWouldBlock or a transport error: the transport refused the frame
//
// A partial transmit is logged and reported as success; the remainder is not retried.
func (e *Encoder) Write(msg []byte) (int, error) {
	p, c := e.opts.lengthBytes, e.opts.checksumBytes

	if uint64(len(msg)) > MaxMessageLen(p) {
		return 0, errors.Wrapf(ErrMessageTooLarge, "%d bytes, length field is %d bytes", len(msg), p)
	}

	lenBuf := e.lenBuf[:p]
	putLength(lenBuf, uint64(len(msg)))
	e.lenSum = e.opts.digest(lenBuf)
	e.msgSum = e.opts.digest(msg)

	e.chunks = [5][]byte{e.magic[:], lenBuf, e.lenSum[:p], msg, e.msgSum[:c]}

	if e.opts.before != nil {
		e.opts.before()
	}
	status, err := e.tx.Transmit(e.chunks[:]...)
	if e.opts.after != nil {
		e.opts.after()
	}
	e.chunks = [5][]byte{}

	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return 0, err
		}
		e.logger.Error("frame transmit failed", "len", len(msg), "error", err)
		return 0, errors.Wrap(err, "transmit")
	}

	if !status.IsComplete() {
		e.logger.Error("partial transmit not retried",
			"sent", status.N(),
			"frame_size", e.FrameSize(len(msg)))
	}

	e.logger.Debug("frame written",
		"len", len(msg),
		"len_checksum", hexBytes(e.lenSum[:p]),
		"checksum", hexBytes(e.msgSum[:c]))

	return len(msg), nil
}

// EncodeInto writes the frame for msg into out, which must be exactly
// FrameSize(P, C, len(msg)) bytes long. On error out is left untouched.
func EncodeInto(out, msg []byte, opt ...Option) error {
	opts := buildOptions(opt)
	if err := checkCodecOptions(&opts); err != nil {
		return err
	}

	want := FrameSize(opts.lengthBytes, opts.checksumBytes, len(msg))
	if len(out) != want {
		return errors.Wrapf(ErrOutputSize, "got %d bytes, want %d", len(out), want)
	}

	cursor := 0
	tx := TransmitterFunc(func(chunks ...[]byte) (Status, error) {
		for _, chunk := range chunks {
			cursor += copy(out[cursor:], chunk)
		}
		return Complete(), nil
	})

	enc := &Encoder{tx: tx, opts: opts, logger: opts.logger, magic: [1]byte{Magic}}
	_, err := enc.Write(msg)
	return err
}

// AppendFrame appends the frame for msg to dst and returns the extended slice.
func AppendFrame(dst, msg []byte, opt ...Option) ([]byte, error) {
	opts := buildOptions(opt)
	if err := checkCodecOptions(&opts); err != nil {
		return dst, err
	}
	if uint64(len(msg)) > MaxMessageLen(opts.lengthBytes) {
		return dst, errors.Wrapf(ErrMessageTooLarge, "%d bytes, length field is %d bytes", len(msg), opts.lengthBytes)
	}

	n := FrameSize(opts.lengthBytes, opts.checksumBytes, len(msg))
	start := len(dst)
	dst = append(dst, make([]byte, n)...)
	if err := EncodeInto(dst[start:], msg, opt...); err != nil {
		return dst[:start], err
	}
	return dst, nil
}
