// Package capture records framed payloads to a CBOR stream and reads them back.
//
// A capture file is a plain concatenation of CBOR-encoded Events with integer
// keys, so it can be appended to by several sessions and streamed back without
// an index.
package capture

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// MaxPayload is the largest payload stored in full. Longer payloads are cut
// to this size and flagged Truncated; Size keeps the original length.
const MaxPayload = 4 * 1024

// Direction tells whether a payload was received or sent.
type Direction uint8

const (
	// DirectionIn marks a payload decoded from the peer.
	DirectionIn Direction = 0
	// DirectionOut marks a payload encoded towards the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Event is one captured payload.
type Event struct {
	// Timestamp when the payload crossed the codec (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the session the payload belongs to.
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"4,keyasint,omitempty"`

	// Size is the payload length before truncation.
	Size int `cbor:"5,keyasint"`

	Payload   []byte `cbor:"6,keyasint"`
	Truncated bool   `cbor:"7,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}

// NewEvent builds an Event stamped with the current time, truncating payload
// to MaxPayload. The payload is copied.
func NewEvent(connID string, dir Direction, payload []byte) Event {
	e := Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Size:         len(payload),
	}
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
		e.Truncated = true
	}
	e.Payload = append([]byte{}, payload...)
	return e
}

// Encode encodes an Event to CBOR bytes.
func Encode(e Event) ([]byte, error) {
	return encMode.Marshal(e)
}

// Decode decodes CBOR bytes into an Event.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := decMode.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
