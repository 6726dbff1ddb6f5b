package errcode

import "strconv"

// Status is the closed enumeration carried in call result registers.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusNotFound
	StatusBusy
	StatusInvalidArgument
	StatusInternal
)

var statusCodes = [...]Code{
	StatusSuccess:         OK,
	StatusNotFound:        NotFound,
	StatusBusy:            Busy,
	StatusInvalidArgument: InvalidArgument,
	StatusInternal:        Internal,
}

func (s Status) String() string {
	if int(s) < len(statusCodes) {
		return string(statusCodes[s])
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Err returns nil for StatusSuccess and the matching Code otherwise.
// Values outside the enumeration map to Internal.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	if int(s) < len(statusCodes) {
		return statusCodes[s]
	}
	return Internal
}

// StatusOf maps an error onto the wire enumeration.
func StatusOf(err error) Status {
	switch Of(err) {
	case OK:
		return StatusSuccess
	case NotFound:
		return StatusNotFound
	case Busy:
		return StatusBusy
	case InvalidArgument:
		return StatusInvalidArgument
	default:
		return StatusInternal
	}
}
