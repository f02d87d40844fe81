package dpop

import (
	"sync"
	"time"
)

const (
	// DefaultTTL outlives MaxProofAge plus ClockSkew of the default
	// validator, so a proof is never accepted after its jti is forgotten.
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 100_000
	MaxJTILength      = 1024
)

// JTICache remembers proof identifiers for replay detection. Record
// reports replay=true for a jti that is still remembered.
type JTICache interface {
	Record(jti string) (replay bool, err error)
}

// MemoryJTICache keeps jti expiry times in a map. Stale entries are pruned
// when the map fills up or when Sweep is called.
type MemoryJTICache struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	ttl    time.Duration
	limit  int
	clock  func() time.Time
}

// MemoryJTICacheOption customizes NewMemoryJTICache.
type MemoryJTICacheOption func(*MemoryJTICache)

// WithTTL sets how long a jti is remembered. It must not be shorter than
// the validator's MaxProofAge plus ClockSkew.
func WithTTL(ttl time.Duration) MemoryJTICacheOption {
	return func(c *MemoryJTICache) { c.ttl = ttl }
}

// WithMaxEntries caps the number of remembered jtis. Past the cap, Record
// fails with ErrCacheFull unless expired entries can be pruned.
func WithMaxEntries(n int) MemoryJTICacheOption {
	return func(c *MemoryJTICache) { c.limit = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryJTICacheOption {
	return func(c *MemoryJTICache) { c.clock = now }
}

// NewMemoryJTICache returns an empty cache with DefaultTTL and
// DefaultMaxEntries unless overridden.
func NewMemoryJTICache(opts ...MemoryJTICacheOption) *MemoryJTICache {
	c := &MemoryJTICache{
		expiry: map[string]time.Time{},
		ttl:    DefaultTTL,
		limit:  DefaultMaxEntries,
		clock:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Record is atomic: of several concurrent calls with one jti, exactly one
// sees replay=false.
func (c *MemoryJTICache) Record(jti string) (bool, error) {
	switch {
	case jti == "":
		return false, ErrInvalidJTI
	case len(jti) > MaxJTILength:
		return false, ErrJTITooLong
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if exp, ok := c.expiry[jti]; ok && now.Before(exp) {
		return true, nil
	}
	if len(c.expiry) >= c.limit && c.prune(now) == 0 {
		return false, ErrCacheFull
	}
	c.expiry[jti] = now.Add(c.ttl)
	return false, nil
}

// Sweep drops every expired entry.
func (c *MemoryJTICache) Sweep() {
	c.mu.Lock()
	c.prune(c.clock())
	c.mu.Unlock()
}

// prune drops expired entries and returns how many went.
func (c *MemoryJTICache) prune(now time.Time) int {
	n := 0
	for jti, exp := range c.expiry {
		if !now.Before(exp) {
			delete(c.expiry, jti)
			n++
		}
	}
	return n
}

// Len reports the number of remembered jtis, expired ones included until
// they are pruned.
func (c *MemoryJTICache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expiry)
}

var _ JTICache = (*MemoryJTICache)(nil)
