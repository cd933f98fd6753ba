package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMeasurement(t *testing.T) {
	m, err := DecodeMeasurement([]byte(`{"id": 2, "device": "Ic", "measurement[A]": 7}`))
	require.NoError(t, err)
	assert.Equal(t, 2, m.DeviceID)
	assert.Equal(t, "Ic", m.Channel)
	assert.Equal(t, 7, m.Value)
}

func TestDecodeMeasurementChannelOptional(t *testing.T) {
	m, err := DecodeMeasurement([]byte(`{"id": 1, "measurement[A]": 3}`))
	require.NoError(t, err)
	assert.Equal(t, 1, m.DeviceID)
	assert.Empty(t, m.Channel)
}

func TestDecodeMeasurementRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		reason  error
	}{
		{"not json", `not json at all`, ErrNotJSON},
		{"missing id", `{"measurement[A]": 3}`, ErrMissingDeviceID},
		{"missing value", `{"id": 1}`, ErrMissingValue},
		{"empty", ``, ErrNotJSON},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeMeasurement([]byte(tc.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.reason)

			var dErr *DecodeError
			assert.ErrorAs(t, err, &dErr)
		})
	}
}

func TestEventEncodeEchoesFilterVerbatim(t *testing.T) {
	ev := &Event{DeviceID: 1, Filter: "Ia>5", ThresholdAchieved: true}
	payload, err := ev.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"filter":"Ia>5","threshold_achieved":true}`, string(payload))
}
