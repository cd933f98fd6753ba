package device

import "fmt"

// ID identifies one sensing device. Each device aggregates two current
// measurement channels (Ia/Ib belong to device 1, and so on).
type ID int

// The fixed fleet: eight channels across four devices.
const (
	MinID ID = 1
	MaxID ID = 4
)

var channelMap = map[string]ID{
	"Ia": 1, "Ib": 1,
	"Ic": 2, "Id": 2,
	"Ie": 3, "If": 3,
	"Ig": 4, "Ih": 4,
}

// UnknownDeviceError indicates a channel code that maps to no configured device.
type UnknownDeviceError struct {
	Channel string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("channel %q maps to no configured device", e.Channel)
}

// ForChannel resolves the device owning a channel code.
func ForChannel(channel string) (ID, error) {
	id, ok := channelMap[channel]
	if !ok {
		return 0, &UnknownDeviceError{Channel: channel}
	}
	return id, nil
}

// Valid reports whether id addresses a configured device.
func (id ID) Valid() bool {
	return id >= MinID && id <= MaxID
}

// All returns the configured device ids in ascending order.
func All() []ID {
	ids := make([]ID, 0, MaxID-MinID+1)
	for id := MinID; id <= MaxID; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Channels returns the channel codes owned by a device, in code order.
func Channels(id ID) []string {
	var out []string
	for _, ch := range []string{"Ia", "Ib", "Ic", "Id", "Ie", "If", "Ig", "Ih"} {
		if channelMap[ch] == id {
			out = append(out, ch)
		}
	}
	return out
}
