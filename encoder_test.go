package framing

import (
	"bytes"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoder_ConcreteFrame(t *testing.T) {
	msg := []byte{0x01, 0x02, 0x03}
	lenSum := sha256.Sum256([]byte{0x00, 0x03})
	msgSum := sha256.Sum256(msg)

	want := []byte{0xA9, 0x00, 0x03}
	want = append(want, lenSum[:2]...)
	want = append(want, msg...)
	want = append(want, msgSum[:4]...)

	out := make([]byte, 12)
	err := EncodeInto(out, msg, LengthBytesOption(2), ChecksumBytesOption(4), LoggerOption(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, want, out)

	dec := newPlain(t, 64, LengthBytesOption(2), ChecksumBytesOption(4))
	require.NoError(t, dec.Add(out))
	buf := make([]byte, 16)
	n, err := dec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf[:n])
}

func TestEncoder_ChunkList(t *testing.T) {
	tx := &recordingTransmitter{}
	enc, err := NewEncoder(tx, LengthBytesOption(2), ChecksumBytesOption(4), LoggerOption(quietLogger()))
	require.NoError(t, err)

	msg := []byte("hello")
	n, err := enc.Write(msg)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)

	require.Len(t, tx.calls, 1)
	chunks := tx.calls[0]
	require.Len(t, chunks, 5)
	assert.Equal(t, []byte{Magic}, chunks[0])
	assert.Equal(t, []byte{0x00, 0x05}, chunks[1])
	assert.Equal(t, Checksum(SHA256, []byte{0x00, 0x05}, 2), chunks[2])
	assert.Equal(t, msg, chunks[3])
	assert.Equal(t, Checksum(SHA256, msg, 4), chunks[4])
	assert.Len(t, tx.joined(0), enc.FrameSize(len(msg)))
}

func TestEncoder_MessageTooLarge(t *testing.T) {
	tx := &recordingTransmitter{}
	hooks := 0
	enc, err := NewEncoder(tx,
		LengthBytesOption(1),
		HooksOption(func() { hooks++ }, func() { hooks++ }),
		LoggerOption(quietLogger()))
	require.NoError(t, err)

	_, err = enc.Write(make([]byte, 256))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	assert.Empty(t, tx.calls)
	assert.Zero(t, hooks)

	n, err := enc.Write(make([]byte, 255))
	require.NoError(t, err)
	assert.Equal(t, 255, n)
	assert.Len(t, tx.calls, 1)
}

func TestEncoder_Hooks(t *testing.T) {
	var order []string
	tx := TransmitterFunc(func(chunks ...[]byte) (Status, error) {
		order = append(order, "transmit")
		return Complete(), nil
	})
	enc, err := NewEncoder(tx,
		HooksOption(func() { order = append(order, "before") }, func() { order = append(order, "after") }),
		LoggerOption(quietLogger()))
	require.NoError(t, err)

	_, err = enc.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "transmit", "after"}, order)
}

func TestEncoder_PartialTransmitIsNotRetried(t *testing.T) {
	tx := &recordingTransmitter{status: Partial(3)}
	enc, err := NewEncoder(tx, LoggerOption(quietLogger()))
	require.NoError(t, err)

	n, err := enc.Write([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Len(t, tx.calls, 1)
}

func TestEncoder_TransportErrors(t *testing.T) {
	tx := &recordingTransmitter{err: io.ErrClosedPipe}
	enc, err := NewEncoder(tx, LoggerOption(quietLogger()))
	require.NoError(t, err)

	_, err = enc.Write([]byte("payload"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	tx.err = ErrWouldBlock
	_, err = enc.Write([]byte("payload"))
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Len(t, tx.calls, 2)
}

func TestNewEncoder_InvalidParams(t *testing.T) {
	tx := &recordingTransmitter{}

	_, err := NewEncoder(tx, LengthBytesOption(9))
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewEncoder(tx, ChecksumBytesOption(33))
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewEncoder(nil)
	assert.Error(t, err)
}

func TestEncodeInto_SizeMismatch(t *testing.T) {
	msg := []byte{0x01, 0x02, 0x03}
	for _, size := range []int{0, 11, 13, 100} {
		out := bytes.Repeat([]byte{0xEE}, size)
		err := EncodeInto(out, msg, LoggerOption(quietLogger()))
		assert.ErrorIs(t, err, ErrOutputSize, "size %d", size)
		assert.Equal(t, bytes.Repeat([]byte{0xEE}, size), out, "size %d", size)
	}
}

func TestEncodeInto_TooLargeLeavesOutputUntouched(t *testing.T) {
	msg := make([]byte, 256)
	out := bytes.Repeat([]byte{0xEE}, FrameSize(1, 4, len(msg)))
	err := EncodeInto(out, msg, LengthBytesOption(1), LoggerOption(quietLogger()))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	assert.Equal(t, bytes.Repeat([]byte{0xEE}, len(out)), out)
}

func TestAppendFrame(t *testing.T) {
	prefix := []byte("prefix")
	out, err := AppendFrame(append([]byte(nil), prefix...), []byte("abc"), LoggerOption(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, prefix, out[:len(prefix)])
	assert.Len(t, out, len(prefix)+FrameSize(2, 4, 3))
	assert.Equal(t, Magic, out[len(prefix)])

	_, err = AppendFrame(nil, make([]byte, 300), LengthBytesOption(1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestEncoder_IsWriter(t *testing.T) {
	q := NewQueue(256)
	enc, err := NewEncoder(q, LoggerOption(quietLogger()))
	require.NoError(t, err)

	var w io.Writer = enc
	_, err = io.WriteString(w, "one frame")
	require.NoError(t, err)
	assert.Equal(t, FrameSize(2, 4, 9), q.Len())
}
