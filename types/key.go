package types

import "strconv"

// Whole marks a claim on every sub-resource of an instance.
const Whole = -1

// ResourceKey addresses a claimable resource: (class, instance[, sub]).
type ResourceKey struct {
	Class    Class
	Instance uint8
	Sub      int // pin/channel index, or Whole
}

func Key(c Class, instance uint8, sub int) ResourceKey {
	return ResourceKey{Class: c, Instance: instance, Sub: sub}
}

func WholeKey(c Class, instance uint8) ResourceKey {
	return ResourceKey{Class: c, Instance: instance, Sub: Whole}
}

func (k ResourceKey) IsWhole() bool  { return k.Sub == Whole }
func (k ResourceKey) HWDev() HWDevID { return HWDev(k.Class, k.Instance) }

func (k ResourceKey) String() string {
	s := k.HWDev().String()
	if !k.IsWhole() {
		s += "." + strconv.Itoa(k.Sub)
	}
	return s
}
