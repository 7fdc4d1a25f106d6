package framing

import (
	"github.com/pkg/errors"
)

// ErrBufferOverflow is returned when an in-progress frame does not fit the decoder's buffer.
// It means the buffer is too small for the traffic, not that the stream is corrupt.
var ErrBufferOverflow = errors.New("framing: decoder buffer overflow")

// Phase is the part of a frame the decoder is waiting for.
type Phase int

// Decode phases, in wire order.
const (
	PhaseMagic Phase = iota
	PhaseLength
	PhaseLengthChecksum
	PhasePayload
	PhasePayloadChecksum
)

func (p Phase) String() string {
	switch p {
	case PhaseMagic:
		return "magic"
	case PhaseLength:
		return "length"
	case PhaseLengthChecksum:
		return "length_checksum"
	case PhasePayload:
		return "payload"
	case PhasePayloadChecksum:
		return "payload_checksum"
	default:
		return "unknown"
	}
}

// Stats counts what a decoder has seen since it was created.
type Stats struct {
	Frames            uint64 // frames validated and returned
	LengthMismatches  uint64 // frames dropped on the length checksum
	PayloadMismatches uint64 // frames dropped on the payload checksum
	CapacityDrops     uint64 // frames dropped because the payload exceeded the output buffer
	Overflows         uint64 // frames abandoned with ErrBufferOverflow
	NoiseBytes        uint64 // bytes discarded while searching for the magic byte
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Frames:            s.Frames + o.Frames,
		LengthMismatches:  s.LengthMismatches + o.LengthMismatches,
		PayloadMismatches: s.PayloadMismatches + o.PayloadMismatches,
		CapacityDrops:     s.CapacityDrops + o.CapacityDrops,
		Overflows:         s.Overflows + o.Overflows,
		NoiseBytes:        s.NoiseBytes + o.NoiseBytes,
	}
}

// Dropped returns the number of frames discarded for any reason.
func (s Stats) Dropped() uint64 {
	return s.LengthMismatches + s.PayloadMismatches + s.CapacityDrops + s.Overflows
}

// Decoder reassembles frames from a Receiver.
//
// The decoder holds the frame in progress exactly as received. What to ask the
// transport for next is always derived from how many bytes are held, so Read
// may stop at any point with ErrWouldBlock and a later Read resumes there.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	rx     Receiver
	opts   options
	logger Logger

	frame []byte // in-progress frame, cap == bufferSize, never grows
	one   [1]byte
	stats Stats
}

// NewDecoder creates a decoder reading from rx.
// The accumulation buffer is allocated once here and never grows.
func NewDecoder(rx Receiver, opt ...Option) (*Decoder, error) {
	if rx == nil {
		return nil, errors.New("framing: nil receiver")
	}

	opts := buildOptions(opt)
	if err := checkCodecOptions(&opts); err != nil {
		return nil, err
	}

	return &Decoder{
		rx:     rx,
		opts:   opts,
		logger: opts.logger,
		frame:  make([]byte, 0, opts.bufferSize),
	}, nil
}

// Read decodes the next frame into buf and returns the payload length.
// len(buf) is the largest payload accepted; larger frames are dropped.
//
// Returns:
//   - n, nil: a validated payload was copied into buf[:n]
//   - ErrWouldBlock: the transport ran dry; call Read again later
//   - ErrBufferOverflow: the frame does not fit the decoder buffer; it was dropped
//   - any other error: the transport failed
//
// Checksum failures never surface: the held bytes are discarded and the search
// for the next magic byte continues within the same call.
func (d *Decoder) Read(buf []byte) (int, error) {
	if d.opts.before != nil {
		d.opts.before()
	}

	p, c := d.opts.lengthBytes, d.opts.checksumBytes

	for {
		if len(d.frame) < 1 {
			if err := d.seekMagic(); err != nil {
				return 0, err
			}
		}

		lenEnd := 1 + p
		if err := d.fill(lenEnd); err != nil {
			return 0, err
		}

		sumEnd := lenEnd + p
		if len(d.frame) < sumEnd {
			if err := d.fill(sumEnd); err != nil {
				return 0, err
			}
			if ok, sum := checksumMatches(d.opts.digest, d.frame[1:lenEnd], d.frame[lenEnd:sumEnd]); !ok {
				d.logger.Error("frame failed length checksum",
					"got", hexBytes(d.frame[lenEnd:sumEnd]),
					"want", hexBytes(sum[:p]))
				d.stats.LengthMismatches++
				d.reset()
				continue
			}
		}

		size := readLength(d.frame[1:lenEnd])
		if size > uint64(len(buf)) {
			d.logger.Error("frame too large for output buffer, dropped",
				"len", size,
				"capacity", len(buf))
			d.stats.CapacityDrops++
			d.reset()
			continue
		}

		payEnd := sumEnd + int(size)
		if err := d.fill(payEnd); err != nil {
			return 0, err
		}

		end := payEnd + c
		if err := d.fill(end); err != nil {
			return 0, err
		}

		payload := d.frame[sumEnd:payEnd]
		if ok, sum := checksumMatches(d.opts.digest, payload, d.frame[payEnd:end]); !ok {
			d.logger.Error("frame failed payload checksum",
				"got", hexBytes(d.frame[payEnd:end]),
				"want", hexBytes(sum[:c]))
			d.stats.PayloadMismatches++
			d.reset()
			continue
		}

		if d.opts.after != nil {
			d.opts.after()
		}

		n := copy(buf, payload)
		d.reset()
		d.stats.Frames++
		d.logger.Debug("frame read", "len", n)
		return n, nil
	}
}

// seekMagic discards bytes until the magic byte arrives, then holds it.
func (d *Decoder) seekMagic() error {
	for {
		status, err := d.rx.Receive(d.one[:])
		if err != nil {
			return d.receiveError(err)
		}
		if !status.IsComplete() {
			return ErrWouldBlock
		}
		if d.one[0] == Magic {
			break
		}
		d.stats.NoiseBytes++
	}

	d.frame = append(d.frame, Magic)
	d.logger.Debug("frame start")
	return nil
}

// fill asks the transport for the bytes still missing before the frame holds target bytes.
func (d *Decoder) fill(target int) error {
	have := len(d.frame)
	if have >= target {
		return nil
	}

	if target > cap(d.frame) {
		d.logger.Error("frame exceeds decoder buffer",
			"need", target,
			"capacity", cap(d.frame))
		d.stats.Overflows++
		d.reset()
		return errors.Wrapf(ErrBufferOverflow, "need %d bytes, capacity %d", target, cap(d.frame))
	}

	dst := d.frame[have:target]
	status, err := d.rx.Receive(dst)
	if err != nil {
		return d.receiveError(err)
	}

	if status.IsComplete() {
		d.frame = d.frame[:target]
		return nil
	}

	n := status.N()
	if n < 0 || n >= len(dst) {
		return errors.Wrapf(ErrInvalidStatus, "partial %d of %d", n, len(dst))
	}
	d.frame = d.frame[:have+n]
	return ErrWouldBlock
}

func (d *Decoder) receiveError(err error) error {
	if errors.Is(err, ErrWouldBlock) {
		return err
	}
	return errors.Wrap(err, "receive")
}

// reset drops the frame in progress.
func (d *Decoder) reset() {
	d.frame = d.frame[:0]
}

// Clear discards the frame in progress. Bytes not yet received are unaffected.
func (d *Decoder) Clear() {
	d.reset()
}

// Phase reports which part of the frame the decoder is waiting for.
// It is derived from the number of bytes held.
func (d *Decoder) Phase() Phase {
	p := d.opts.lengthBytes
	held := len(d.frame)
	switch {
	case held < 1:
		return PhaseMagic
	case held < 1+p:
		return PhaseLength
	case held < 1+2*p:
		return PhaseLengthChecksum
	}
	size := readLength(d.frame[1 : 1+p])
	if uint64(held) < uint64(1+2*p)+size {
		return PhasePayload
	}
	return PhasePayloadChecksum
}

// Buffered returns the number of bytes of the frame in progress.
func (d *Decoder) Buffered() int {
	return len(d.frame)
}

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}
