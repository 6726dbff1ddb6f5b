package core

import (
	"hwarb-go/errcode"
	"hwarb-go/types"
)

// State is where a claimed module is in its adapter lifecycle.
type State uint8

const (
	Unclaimed State = iota
	Claimed
	Active
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Unclaimed:
		return "unclaimed"
	case Claimed:
		return "claimed"
	case Active:
		return "active"
	case ShuttingDown:
		return "shutting_down"
	}
	return "unknown"
}

// next lists the legal successors of each state. Claimed may fall back
// to Unclaimed when configuration fails; a quiesced module may stay
// claimed for another setup.
var next = [...][]State{
	Unclaimed:    {Claimed},
	Claimed:      {Active, Unclaimed},
	Active:       {ShuttingDown},
	ShuttingDown: {Unclaimed, Claimed},
}

// Lifecycle tracks one handle's state and reports each transition.
type Lifecycle struct {
	dev   types.HWDevID
	state State
	res   *Resources
}

func NewLifecycle(res *Resources, dev types.HWDevID) *Lifecycle {
	return &Lifecycle{dev: dev, res: res}
}

func (l *Lifecycle) State() State { return l.state }

// To moves to s. Illegal transitions leave the state unchanged and
// return errcode.InvalidArgument.
func (l *Lifecycle) To(core int, s State) error {
	if int(l.state) < len(next) {
		for _, ok := range next[l.state] {
			if ok == s {
				ev := Event{Dev: l.dev, From: l.state, To: s, Core: core}
				l.state = s
				if l.res != nil {
					l.res.emit(ev)
				}
				return nil
			}
		}
	}
	return errcode.Wrap(errcode.InvalidArgument, "lifecycle",
		l.dev.String()+": "+l.state.String()+" -> "+s.String())
}
