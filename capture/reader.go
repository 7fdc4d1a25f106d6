package capture

import (
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
}

func (f Filter) matches(e Event) bool {
	if f.ConnectionID != "" && e.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	return true
}

// Reader streams Events back from a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader returns a Reader decoding events from r that match filter.
func NewReader(r io.Reader, filter Filter) *Reader {
	return &Reader{decoder: decMode.NewDecoder(r), filter: filter}
}

// Open opens a capture file.
func Open(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open capture file")
	}
	r := NewReader(f, filter)
	r.closer = f
	return r, nil
}

// Next returns the next matching event, or io.EOF at the end of the stream.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, errors.Wrap(err, "decode capture event")
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// Close closes the file if the Reader opened it.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
