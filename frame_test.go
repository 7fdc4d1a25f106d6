package framing

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestFrameSize(t *testing.T) {
	assert.Equal(t, 12, FrameSize(2, 4, 3))
	assert.Equal(t, 4, FrameSize(1, 1, 0))
	assert.Equal(t, 1+16+100+32, FrameSize(8, 32, 100))
}

func TestMaxMessageLen(t *testing.T) {
	assert.Equal(t, uint64(255), MaxMessageLen(1))
	assert.Equal(t, uint64(65535), MaxMessageLen(2))
	assert.Equal(t, uint64(1<<56-1), MaxMessageLen(7))
	assert.Equal(t, ^uint64(0), MaxMessageLen(8))
}

func TestLengthField(t *testing.T) {
	buf := make([]byte, 3)
	putLength(buf, 0x010203)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
	assert.Equal(t, uint64(0x010203), readLength(buf))

	buf = make([]byte, 2)
	putLength(buf, 3)
	assert.Equal(t, []byte{0x00, 0x03}, buf)
}

func TestValidateParams(t *testing.T) {
	assert.NoError(t, validateParams(1, 1))
	assert.NoError(t, validateParams(8, 32))
	assert.ErrorIs(t, validateParams(0, 4), ErrInvalidParams)
	assert.ErrorIs(t, validateParams(9, 4), ErrInvalidParams)
	assert.ErrorIs(t, validateParams(2, 0), ErrInvalidParams)
	assert.ErrorIs(t, validateParams(2, 33), ErrInvalidParams)
}

func TestChecksum(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	full := sha256.Sum256(data)

	assert.Equal(t, full[:4], Checksum(SHA256, data, 4))
	assert.Equal(t, full[:], Checksum(SHA256, data, 32))

	ok, _ := checksumMatches(SHA256, data, full[:4])
	assert.True(t, ok)

	bad := append([]byte(nil), full[:4]...)
	bad[3] ^= 0x01
	ok, sum := checksumMatches(SHA256, data, bad)
	assert.False(t, ok)
	assert.Equal(t, full, sum)
}

func TestDigestByName(t *testing.T) {
	data := []byte("framing")

	for _, name := range []string{"", "sha256", "SHA-256"} {
		d, err := DigestByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, sha256.Sum256(data), d(data))
	}

	d, err := DigestByName("blake2b-256")
	require.NoError(t, err)
	assert.Equal(t, blake2b.Sum256(data), d(data))

	d, err = DigestByName("sha3-256")
	require.NoError(t, err)
	assert.NotEqual(t, sha256.Sum256(data), d(data))

	_, err = DigestByName("md5")
	assert.ErrorIs(t, err, ErrUnknownDigest)
}
