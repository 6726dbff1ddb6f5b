package types

import "strconv"

// SWDevID is a logical device role bound to a hardware module.
type SWDevID uint8

const (
	SWConsole SWDevID = iota + 1
	SWSchedTimer
	SWStatusLED
	SWBusSPI
	SWBusI2C
	SWWatchdog
)

var swdevNames = map[SWDevID]string{
	SWConsole:    "console",
	SWSchedTimer: "sched_timer",
	SWStatusLED:  "status_led",
	SWBusSPI:     "bus_spi",
	SWBusI2C:     "bus_i2c",
	SWWatchdog:   "watchdog",
}

func (id SWDevID) String() string {
	if s, ok := swdevNames[id]; ok {
		return s
	}
	return "swdev(" + strconv.Itoa(int(id)) + ")"
}

// ParseSWDevID maps a role name ("console") to its id.
func ParseSWDevID(s string) (SWDevID, bool) {
	for id, n := range swdevNames {
		if n == s {
			return id, true
		}
	}
	return 0, false
}

// SoftwareDeviceRecord binds a logical role to a hardware module.
type SoftwareDeviceRecord struct {
	ID     SWDevID
	PinMux uint
	Device HWDevID
}
