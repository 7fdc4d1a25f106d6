package framing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func quietLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingTransmitter keeps a copy of every Transmit call.
type recordingTransmitter struct {
	calls  [][][]byte
	status Status
	err    error
}

func (r *recordingTransmitter) Transmit(chunks ...[]byte) (Status, error) {
	call := make([][]byte, len(chunks))
	for i, c := range chunks {
		call[i] = append([]byte(nil), c...)
	}
	r.calls = append(r.calls, call)
	return r.status, r.err
}

func (r *recordingTransmitter) joined(i int) []byte {
	var out []byte
	for _, c := range r.calls[i] {
		out = append(out, c...)
	}
	return out
}

// scriptedReceiver replays a fixed list of outcomes, one per Receive call.
// A step with data delivers up to len(p) bytes of it; a step with err returns err.
type scriptedReceiver struct {
	steps []step
	calls int
}

type step struct {
	data   []byte
	status *Status
	err    error
}

func (s *scriptedReceiver) Receive(p []byte) (Status, error) {
	if s.calls >= len(s.steps) {
		return Status{}, ErrWouldBlock
	}
	st := s.steps[s.calls]
	s.calls++
	if st.err != nil {
		return Status{}, st.err
	}
	n := copy(p, st.data)
	if st.status != nil {
		return *st.status, nil
	}
	if n < len(p) {
		return Partial(n), nil
	}
	return Complete(), nil
}

func encodeFrame(t *testing.T, msg []byte, opts ...Option) []byte {
	t.Helper()
	frame, err := AppendFrame(nil, msg, append([]Option{LoggerOption(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return frame
}

func newPlain(t *testing.T, stage int, opts ...Option) *PlainDecoder {
	t.Helper()
	dec, err := NewPlainDecoder(stage, append([]Option{LoggerOption(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return dec
}
