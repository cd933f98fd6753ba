package models

import "encoding/json"

// Event is the outbound filtered-event record, created only on a rule
// state transition. Filter echoes the rule text exactly as entered so a
// consumer can correlate it with what the operator registered.
type Event struct {
	DeviceID          int    `json:"id"`
	Filter            string `json:"filter"`
	ThresholdAchieved bool   `json:"threshold_achieved"`
}

// Encode serializes the event for the wire.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
