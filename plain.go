package framing

// PlainDecoder is a Decoder fed by pushing bytes into it instead of pulling from a transport.
//
//	dec, _ := framing.NewPlainDecoder(1024)
//	_ = dec.Add(chunk)
//	n, err := dec.Read(buf)
//
// Read returns ErrWouldBlock once the staged bytes run out before a frame completes.
type PlainDecoder struct {
	*Decoder
	stage *Queue
}

// NewPlainDecoder creates a decoder whose input is a staging queue of stageSize bytes.
func NewPlainDecoder(stageSize int, opt ...Option) (*PlainDecoder, error) {
	stage := NewQueue(stageSize)
	dec, err := NewDecoder(stage, opt...)
	if err != nil {
		return nil, err
	}
	return &PlainDecoder{Decoder: dec, stage: stage}, nil
}

// Add stages p for decoding. If p does not fit, nothing is staged and ErrQueueFull is returned.
func (d *PlainDecoder) Add(p []byte) error {
	if err := d.stage.Push(p); err != nil {
		d.logger.Error("staging queue full, input dropped", "len", len(p), "staged", d.stage.Len())
		return err
	}
	return nil
}

// Staged returns the number of bytes waiting to be decoded.
func (d *PlainDecoder) Staged() int {
	return d.stage.Len()
}

// RecoverInput empties the staging queue and returns what it held.
// The frame in progress is kept; use Clear to drop it.
func (d *PlainDecoder) RecoverInput() []byte {
	return d.stage.Drain()
}
