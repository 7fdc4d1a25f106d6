package framing

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// DigestSize is the output size every Digest must produce.
const DigestSize = 32

// Digest hashes data into 32 bytes. Checksums are truncations of its output,
// so encoder and decoder must agree on the same Digest.
type Digest func(data []byte) [DigestSize]byte

// Built-in digests.
var (
	SHA256     Digest = sha256.Sum256
	BLAKE2b256 Digest = blake2b.Sum256
	SHA3_256   Digest = sha3.Sum256
)

// ErrUnknownDigest is returned by DigestByName for unsupported names.
var ErrUnknownDigest = errors.New("framing: unknown digest")

// DigestByName resolves a digest from its configuration name.
func DigestByName(name string) (Digest, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256", "sha-256":
		return SHA256, nil
	case "blake2b", "blake2b-256":
		return BLAKE2b256, nil
	case "sha3", "sha3-256":
		return SHA3_256, nil
	default:
		return nil, errors.Wrapf(ErrUnknownDigest, "%q", name)
	}
}

// Checksum returns the first k bytes of d(data).
func Checksum(d Digest, data []byte, k int) []byte {
	sum := d(data)
	out := make([]byte, k)
	copy(out, sum[:k])
	return out
}

// checksumMatches reports whether got equals the leading len(got) bytes of d(data).
// The second return value is the computed digest, kept for error reporting.
func checksumMatches(d Digest, data, got []byte) (bool, [DigestSize]byte) {
	sum := d(data)
	return subtle.ConstantTimeCompare(sum[:len(got)], got) == 1, sum
}
