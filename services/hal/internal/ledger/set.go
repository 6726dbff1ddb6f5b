package ledger

import (
	"hwarb-go/errcode"
	"hwarb-go/types"
)

// Set holds one ledger per class. It is filled once at boot and only read
// afterwards.
type Set map[types.Class]*Ledger

// For returns the ledger of a class, or errcode.NotFound when the board
// has no module of that class.
func (s Set) For(c types.Class) (*Ledger, error) {
	if l, ok := s[c]; ok {
		return l, nil
	}
	return nil, errcode.Wrap(errcode.NotFound, "ledger", "no ledger for class "+c.String())
}
