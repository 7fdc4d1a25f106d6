package framing

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_RoundTrip(t *testing.T) {
	digests := map[string]Digest{"sha256": SHA256, "blake2b": BLAKE2b256, "sha3": SHA3_256}

	for name, digest := range digests {
		for _, p := range []int{1, 2, 3, 4, 8} {
			for _, c := range []int{1, 4, 32} {
				for _, size := range []int{0, 1, 2, 255, 1000} {
					if uint64(size) > MaxMessageLen(p) {
						continue
					}
					t.Run(fmt.Sprintf("%s/P%d/C%d/len%d", name, p, c, size), func(t *testing.T) {
						opts := []Option{LengthBytesOption(p), ChecksumBytesOption(c), DigestOption(digest)}
						msg := bytes.Repeat([]byte{0x5A}, size)

						frame := encodeFrame(t, msg, opts...)
						assert.Len(t, frame, FrameSize(p, c, size))

						dec := newPlain(t, 2048, opts...)
						require.NoError(t, dec.Add(frame))

						buf := make([]byte, 1024)
						n, err := dec.Read(buf)
						require.NoError(t, err)
						assert.Equal(t, msg, buf[:n])
						assert.Zero(t, dec.Buffered())
					})
				}
			}
		}
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	msg := []byte("delivered one byte per call")
	frame := encodeFrame(t, msg)
	dec := newPlain(t, 64)
	buf := make([]byte, 64)

	for i, b := range frame {
		require.NoError(t, dec.Add([]byte{b}))
		n, err := dec.Read(buf)
		if i < len(frame)-1 {
			require.ErrorIs(t, err, ErrWouldBlock, "byte %d", i)
			assert.Equal(t, i+1, dec.Buffered())
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, msg, buf[:n])
	}
}

func TestDecoder_ArbitrarySplits(t *testing.T) {
	msgs := [][]byte{[]byte("first"), {}, []byte("third message"), bytes.Repeat([]byte{Magic}, 40)}
	var stream []byte
	for _, m := range msgs {
		stream = append(stream, encodeFrame(t, m)...)
	}

	for chunk := 1; chunk <= 9; chunk++ {
		dec := newPlain(t, 512)
		buf := make([]byte, 64)
		var got [][]byte
		for off := 0; off < len(stream); off += chunk {
			require.NoError(t, dec.Add(stream[off:min(off+chunk, len(stream))]))
			for {
				n, err := dec.Read(buf)
				if err != nil {
					require.ErrorIs(t, err, ErrWouldBlock)
					break
				}
				got = append(got, bytes.Clone(buf[:n]))
			}
		}
		require.Len(t, got, len(msgs), "chunk %d", chunk)
		for i := range msgs {
			assert.Equal(t, msgs[i], got[i], "chunk %d message %d", chunk, i)
		}
	}
}

func TestDecoder_LeadingNoise(t *testing.T) {
	msg := []byte{0x01, 0x02, 0x03}
	noise := []byte{0x00, 0xFF, 0x13, 0x37, 0xA8, 0xAA, 0x00}
	dec := newPlain(t, 64)
	require.NoError(t, dec.Add(append(noise, encodeFrame(t, msg)...)))

	buf := make([]byte, 16)
	n, err := dec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf[:n])
	assert.Equal(t, uint64(len(noise)), dec.Stats().NoiseBytes)
}

func TestDecoder_ChecksumTamper(t *testing.T) {
	msg := []byte{0x10, 0x20, 0x30, 0x40}
	p, c := 2, 4
	frame := encodeFrame(t, msg, LengthBytesOption(p), ChecksumBytesOption(c))

	regions := map[string][2]int{
		"length checksum":  {1 + p, 1 + 2*p},
		"payload checksum": {1 + 2*p + len(msg), len(frame)},
	}

	for name, region := range regions {
		for i := region[0]; i < region[1]; i++ {
			for bit := 0; bit < 8; bit++ {
				t.Run(fmt.Sprintf("%s/byte%d/bit%d", name, i, bit), func(t *testing.T) {
					corrupt := bytes.Clone(frame)
					corrupt[i] ^= 1 << bit

					dec := newPlain(t, 64, LengthBytesOption(p), ChecksumBytesOption(c))
					require.NoError(t, dec.Add(corrupt))

					_, err := dec.Read(make([]byte, 16))
					assert.ErrorIs(t, err, ErrWouldBlock)
					assert.Zero(t, dec.Stats().Frames)
					st := dec.Stats()
					assert.Positive(t, st.LengthMismatches+st.PayloadMismatches)
				})
			}
		}
	}
}

func TestDecoder_PayloadCorruptionThenValidFrame(t *testing.T) {
	bad := encodeFrame(t, []byte{0x01, 0x01, 0x01})
	bad[6] ^= 0xFF
	good := encodeFrame(t, []byte("good"))

	dec := newPlain(t, 64)
	require.NoError(t, dec.Add(append(bad, good...)))

	buf := make([]byte, 16)
	n, err := dec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("good"), buf[:n])
	assert.Equal(t, uint64(1), dec.Stats().PayloadMismatches)
}

func TestDecoder_PayloadLargerThanOutput(t *testing.T) {
	dec := newPlain(t, 128)
	require.NoError(t, dec.Add(encodeFrame(t, make([]byte, 10))))

	_, err := dec.Read(make([]byte, 5))
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, uint64(1), dec.Stats().CapacityDrops)

	dec.RecoverInput()
	dec.Clear()
	require.NoError(t, dec.Add(encodeFrame(t, []byte("fits"))))
	buf := make([]byte, 5)
	n, err := dec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("fits"), buf[:n])
}

func TestDecoder_BufferOverflow(t *testing.T) {
	dec := newPlain(t, 128, BufferSizeOption(FrameSize(2, 4, 4)))
	require.NoError(t, dec.Add(encodeFrame(t, make([]byte, 10))))

	_, err := dec.Read(make([]byte, 64))
	assert.ErrorIs(t, err, ErrBufferOverflow)
	assert.Zero(t, dec.Buffered())
	assert.Equal(t, uint64(1), dec.Stats().Overflows)
}

func TestDecoder_Phases(t *testing.T) {
	msg := []byte("phase")
	frame := encodeFrame(t, msg)
	dec := newPlain(t, 64)
	buf := make([]byte, 16)

	assert.Equal(t, PhaseMagic, dec.Phase())

	want := []Phase{
		PhaseLength,         // magic
		PhaseLength,         // length[0]
		PhaseLengthChecksum, // length[1]
		PhaseLengthChecksum, // checksum[0]
		PhasePayload,        // checksum[1]
	}
	for i, phase := range want {
		require.NoError(t, dec.Add(frame[i:i+1]))
		_, err := dec.Read(buf)
		require.ErrorIs(t, err, ErrWouldBlock)
		assert.Equal(t, phase, dec.Phase(), "after byte %d", i)
	}

	require.NoError(t, dec.Add(frame[5:5+len(msg)]))
	_, err := dec.Read(buf)
	require.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, PhasePayloadChecksum, dec.Phase())
	assert.Equal(t, "payload_checksum", dec.Phase().String())

	require.NoError(t, dec.Add(frame[5+len(msg):]))
	n, err := dec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf[:n])
	assert.Equal(t, PhaseMagic, dec.Phase())
}

func TestDecoder_Hooks(t *testing.T) {
	before, after := 0, 0
	dec := newPlain(t, 64, HooksOption(func() { before++ }, func() { after++ }))
	frame := encodeFrame(t, []byte("hooks"))
	buf := make([]byte, 16)

	require.NoError(t, dec.Add(frame[:3]))
	_, err := dec.Read(buf)
	require.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 1, before)
	assert.Equal(t, 0, after)

	require.NoError(t, dec.Add(frame[3:]))
	_, err = dec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, before)
	assert.Equal(t, 1, after)
}

func TestDecoder_TransportError(t *testing.T) {
	frame := encodeFrame(t, []byte("abc"))
	rx := &scriptedReceiver{steps: []step{
		{data: frame[:1]},
		{data: frame[1:3]},
		{err: io.ErrUnexpectedEOF},
	}}
	dec, err := NewDecoder(rx, LoggerOption(quietLogger()))
	require.NoError(t, err)

	_, err = dec.Read(make([]byte, 16))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 3, dec.Buffered())
}

func TestDecoder_CompleteAcrossPhasesInOneCall(t *testing.T) {
	frame := encodeFrame(t, []byte("abc"))
	rx := &scriptedReceiver{steps: []step{
		{data: frame[:1]},
		{data: frame[1:3]},
		{data: frame[3:5]},
		{data: frame[5:8]},
		{data: frame[8:]},
	}}
	dec, err := NewDecoder(rx, LoggerOption(quietLogger()))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := dec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), buf[:n])
	assert.Equal(t, 5, rx.calls)
}

func TestDecoder_InvalidPartialCount(t *testing.T) {
	frame := encodeFrame(t, []byte("abc"))
	bogus := Partial(2)
	rx := &scriptedReceiver{steps: []step{
		{data: frame[:1]},
		{data: frame[1:3], status: &bogus},
	}}
	dec, err := NewDecoder(rx, LoggerOption(quietLogger()))
	require.NoError(t, err)

	_, err = dec.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestNewDecoder_InvalidParams(t *testing.T) {
	q := NewQueue(8)

	_, err := NewDecoder(q, BufferSizeOption(FrameSize(2, 4, 0)-1))
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewDecoder(q, LengthBytesOption(-1))
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewDecoder(nil)
	assert.Error(t, err)
}

func TestEncoderDecoder_SharedQueue(t *testing.T) {
	q := NewQueue(1024)
	opts := []Option{LengthBytesOption(3), ChecksumBytesOption(8), LoggerOption(quietLogger())}

	enc, err := NewEncoder(q, opts...)
	require.NoError(t, err)
	dec, err := NewDecoder(q, opts...)
	require.NoError(t, err)

	for _, msg := range []string{"alpha", "beta", "gamma"} {
		_, err := enc.Write([]byte(msg))
		require.NoError(t, err)
	}

	buf := make([]byte, 32)
	for _, want := range []string{"alpha", "beta", "gamma"} {
		n, err := dec.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, want, string(buf[:n]))
	}
	_, err = dec.Read(buf)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

// A frame cut short is only abandoned by its checksum, so a following
// frame that arrives in the meantime is absorbed as payload and lost.
func TestDecoder_TruncatedFrameSwallowsNext(t *testing.T) {
	a := encodeFrame(t, make([]byte, 10))
	b := encodeFrame(t, []byte("b"))
	dec := newPlain(t, 128)
	buf := make([]byte, 32)

	require.NoError(t, dec.Add(append(append([]byte(nil), a[:8]...), b...)))
	_, err := dec.Read(buf)
	require.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 18, dec.Buffered())
	assert.Equal(t, PhasePayloadChecksum, dec.Phase())
	assert.Zero(t, dec.Stats().Frames)

	require.NoError(t, dec.Add([]byte{0x00}))
	_, err = dec.Read(buf)
	require.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, uint64(1), dec.Stats().PayloadMismatches)
	assert.Zero(t, dec.Stats().Frames, "the swallowed frame is never delivered")
	assert.Zero(t, dec.Buffered())

	require.NoError(t, dec.Add(encodeFrame(t, []byte("c"))))
	n, err := dec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), buf[:n])
}
