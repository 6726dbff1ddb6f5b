package core

import (
	"hwarb-go/bus"
	"hwarb-go/types"
)

// hal/res/<class>/<instance>/state
func StateTopic(dev types.HWDevID) bus.Topic {
	return bus.T("hal", "res", dev.Class().String(), int(dev.Instance()), "state")
}

// hal/res/+/+/state
func StateWildcard() bus.Topic {
	return bus.T("hal", "res", bus.SingleWild, bus.SingleWild, "state")
}

// StatePayload is the retained value on a state topic.
type StatePayload struct {
	State string
	Core  int
}

// BusEmitter publishes lifecycle events as retained state messages.
// Transitions back to Unclaimed keep a retained "unclaimed" value rather
// than clearing the topic.
type BusEmitter struct {
	Conn *bus.Connection
}

var _ EventEmitter = BusEmitter{}

func (e BusEmitter) Emit(ev Event) bool {
	e.Conn.Publish(e.Conn.NewMessage(StateTopic(ev.Dev), StatePayload{State: ev.To.String(), Core: ev.Core}, true))
	return true
}
