package core

import (
	"slices"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/vcall"
	"hwarb-go/types"
)

// Claims is the ordered set of ledger keys an adapter holds. It is used
// by a single goroutine.
//
// Every entry path that claims through Claims must either keep the keys
// (handing them to a handle) or call Unwind before returning an error.
type Claims struct {
	res  *Resources
	core int
	held []types.ResourceKey
}

func (c *Claims) Core() int { return c.core }

// Take claims key and resolves its module record. If resolution fails
// the key's own claim is rolled back; earlier keys stay held.
func (c *Claims) Take(key types.ResourceKey) (*types.ModuleRecord, error) {
	if err := c.Reserve(key); err != nil {
		return nil, err
	}
	m, err := vcall.FetchModule(c.res.Calls, key.Class, key.Instance)
	if err != nil {
		c.drop(key)
		return nil, err
	}
	return m, nil
}

// Reserve claims key without resolving anything.
func (c *Claims) Reserve(key types.ResourceKey) error {
	l, err := c.res.Ledgers.For(key.Class)
	if err != nil {
		return err
	}
	if err := l.ClaimKey(c.core, key); err != nil {
		return err
	}
	c.held = append(c.held, key)
	return nil
}

// Release gives back one held key. The key stays held if the ledger
// refuses the release.
func (c *Claims) Release(key types.ResourceKey) error {
	for i := len(c.held) - 1; i >= 0; i-- {
		if c.held[i] == key {
			if err := c.release(key); err != nil {
				return err
			}
			c.held = slices.Delete(c.held, i, i+1)
			return nil
		}
	}
	return errcode.Wrap(errcode.InvalidArgument, "claims", key.String()+" not held")
}

// Unwind releases every held key, newest first. Keys that cannot be
// released stay held and the first failure is returned.
func (c *Claims) Unwind() error {
	var first error
	var kept []types.ResourceKey
	for i := len(c.held) - 1; i >= 0; i-- {
		if err := c.release(c.held[i]); err != nil {
			if first == nil {
				first = err
			}
			kept = append(kept, c.held[i])
		}
	}
	slices.Reverse(kept)
	c.held = kept
	return first
}

// Held returns the keys in claim order.
func (c *Claims) Held() []types.ResourceKey {
	return append([]types.ResourceKey(nil), c.held...)
}

func (c *Claims) drop(key types.ResourceKey) {
	if n := len(c.held); n > 0 && c.held[n-1] == key {
		c.held = c.held[:n-1]
	}
	_ = c.release(key)
}

func (c *Claims) release(key types.ResourceKey) error {
	l, err := c.res.Ledgers.For(key.Class)
	if err != nil {
		return err
	}
	return l.ReleaseKey(c.core, key)
}
