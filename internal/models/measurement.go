package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Measurement is one inbound current reading. The producer may include
// the channel code in "device" but routing relies solely on "id".
type Measurement struct {
	DeviceID int    `json:"id"`
	Channel  string `json:"device,omitempty"`
	Value    int    `json:"measurement[A]"`

	// ReceivedAt is stamped by the ingress loop, not part of the wire format.
	ReceivedAt time.Time `json:"-"`
}

// Decode failure reasons
var (
	ErrNotJSON         = errors.New("payload is not valid JSON")
	ErrMissingDeviceID = errors.New("payload missing \"id\" field")
	ErrMissingValue    = errors.New("payload missing \"measurement[A]\" field")
)

// DecodeError reports an inbound payload that is not a well-formed
// measurement. It is logged and the datagram dropped, never surfaced.
type DecodeError struct {
	Payload []byte
	Reason  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable measurement %q: %v", truncate(e.Payload, 64), e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Reason }

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// DecodeMeasurement parses a measurement datagram, requiring the device
// id and value fields to be present.
func DecodeMeasurement(data []byte) (*Measurement, error) {
	var raw struct {
		DeviceID *int   `json:"id"`
		Channel  string `json:"device"`
		Value    *int   `json:"measurement[A]"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Payload: data, Reason: ErrNotJSON}
	}
	if raw.DeviceID == nil {
		return nil, &DecodeError{Payload: data, Reason: ErrMissingDeviceID}
	}
	if raw.Value == nil {
		return nil, &DecodeError{Payload: data, Reason: ErrMissingValue}
	}

	return &Measurement{
		DeviceID: *raw.DeviceID,
		Channel:  raw.Channel,
		Value:    *raw.Value,
	}, nil
}
