// Package framing turns an unreliable byte stream into discrete, validated messages and back.
//
// A frame on the wire looks like this:
//
//	MAGIC(1) | LENGTH(P) | LENGTH_CHECKSUM(P) | PAYLOAD(len) | PAYLOAD_CHECKSUM(C)
//
// LENGTH is a big-endian unsigned integer P bytes wide. Both checksums are the leading bytes
// of a 32-byte digest (SHA-256 by default) of the length field and of the payload.
//
// The Decoder is a resumable state machine: every call to Read picks up exactly where the
// previous one stopped, so it can be driven by non-blocking transports that deliver bytes a
// few at a time. The Encoder builds one frame per Write and hands it to the transport as an
// ordered list of chunks, never concatenating them.
package framing

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Magic marks a candidate frame start. It only speeds up resynchronization;
// the checksums decide whether a frame is valid.
const Magic byte = 0xA9

// Parameter bounds.
const (
	// MaxLengthBytes is the widest supported length field.
	MaxLengthBytes = 8
	// MaxChecksumBytes is the widest supported checksum (the digest size).
	MaxChecksumBytes = DigestSize
)

// Default frame parameters.
const (
	defaultLengthBytes   = 2
	defaultChecksumBytes = 4
	defaultBufferSize    = 4096
)

// ErrInvalidParams is returned when frame parameters are out of range.
var ErrInvalidParams = errors.New("framing: invalid frame parameters")

// FrameSize returns the encoded size of a message of msgLen bytes.
func FrameSize(lengthBytes, checksumBytes, msgLen int) int {
	return 1 + 2*lengthBytes + msgLen + checksumBytes
}

// MaxMessageLen returns the largest payload a length field of the given width can describe.
func MaxMessageLen(lengthBytes int) uint64 {
	if lengthBytes >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(lengthBytes)) - 1
}

func validateParams(lengthBytes, checksumBytes int) error {
	if lengthBytes < 1 || lengthBytes > MaxLengthBytes {
		return errors.Wrapf(ErrInvalidParams, "length bytes %d not in [1, %d]", lengthBytes, MaxLengthBytes)
	}
	if checksumBytes < 1 || checksumBytes > MaxChecksumBytes {
		return errors.Wrapf(ErrInvalidParams, "checksum bytes %d not in [1, %d]", checksumBytes, MaxChecksumBytes)
	}
	return nil
}

// putLength writes n big-endian into dst, using all of dst.
func putLength(dst []byte, n uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], n)
	copy(dst, tmp[8-len(dst):])
}

// readLength decodes a big-endian length field of any width up to 8 bytes.
func readLength(src []byte) uint64 {
	var n uint64
	for _, b := range src {
		n = n<<8 | uint64(b)
	}
	return n
}
