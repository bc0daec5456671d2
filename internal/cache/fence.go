package cache

import "sync"

// Fence orders cache fills against invalidations. A value computed from
// data read before Advance is never stored after it.
//
// The zero value is ready to use. A nil *Fence never blocks a store.
type Fence struct {
	mu  sync.Mutex
	gen uint64
}

// Token returns the current generation, taken before reading the source.
func (f *Fence) Token() uint64 {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

// Advance moves to a new generation and runs invalidate while no fill can
// be stored. Fills that took their token earlier are discarded.
func (f *Fence) Advance(invalidate func() error) error {
	if f == nil {
		return invalidate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	return invalidate()
}

// storeIf runs set only when token is still the current generation and
// reports whether it did.
func (f *Fence) storeIf(token uint64, set func()) bool {
	if f == nil {
		set()
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != token {
		return false
	}
	set()
	return true
}
