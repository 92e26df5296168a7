package overlay

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// idGenerationAttempts bounds how many random draws Add makes before
// giving up on a family that's genuinely full (spec.md's Design Notes:
// "implementers must still handle the rare id collision by retrying id
// generation").
const idGenerationAttempts = 64

// entry is one request-cache slot. Data carries whatever typed payload
// the caller needs back on Get/Pop/timeout — a SimilarityAttempt or a
// PingRequestCache in this package.
type entry struct {
	id        uint16
	data      any
	onTimeout func(id uint16, data any)
	timer     *time.Timer
	popped    bool
}

// RequestCache correlates outgoing requests with incoming responses via
// short-lived numeric ids, partitioned by family (spec.md §4.B). It
// guarantees at-most-once delivery of either Pop or the timeout callback
// for a given entry.
type RequestCache struct {
	mu       sync.Mutex
	families map[string]map[uint16]*entry
}

// NewRequestCache builds an empty cache.
func NewRequestCache() *RequestCache {
	return &RequestCache{families: make(map[string]map[uint16]*entry)}
}

// Add allocates a uniform-random 16-bit id not currently taken in family,
// stores data under it, and arranges for onTimeout to fire once after
// timeout unless the entry is popped first. Returns ErrIDSpaceExhausted
// if no free id was found after idGenerationAttempts draws.
func (c *RequestCache) Add(family string, timeout time.Duration, data any, onTimeout func(id uint16, data any)) (uint16, error) {
	c.mu.Lock()
	bucket, ok := c.families[family]
	if !ok {
		bucket = make(map[uint16]*entry)
		c.families[family] = bucket
	}

	var id uint16
	found := false
	for i := 0; i < idGenerationAttempts; i++ {
		id = randomUint16()
		if _, taken := bucket[id]; !taken {
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return 0, ErrIDSpaceExhausted
	}

	e := &entry{id: id, data: data, onTimeout: onTimeout}
	bucket[id] = e
	c.mu.Unlock()

	e.timer = time.AfterFunc(timeout, func() { c.fire(family, id) })
	return id, nil
}

func (c *RequestCache) fire(family string, id uint16) {
	c.mu.Lock()
	bucket, ok := c.families[family]
	if !ok {
		c.mu.Unlock()
		return
	}
	e, ok := bucket[id]
	if !ok || e.popped {
		c.mu.Unlock()
		return
	}
	delete(bucket, id)
	c.mu.Unlock()

	if e.onTimeout != nil {
		e.onTimeout(id, e.data)
	}
}

// Get peeks at an entry's data without removing it.
func (c *RequestCache) Get(family string, id uint16) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.families[family]
	if !ok {
		return nil, false
	}
	e, ok := bucket[id]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Has probes for an entry's presence.
func (c *RequestCache) Has(family string, id uint16) bool {
	_, ok := c.Get(family, id)
	return ok
}

// Pop removes and returns an entry's data, canceling its timeout. A
// canceled timer that has already started firing is harmless: fire
// re-checks popped/presence under the lock before invoking onTimeout.
func (c *RequestCache) Pop(family string, id uint16) (any, bool) {
	c.mu.Lock()
	bucket, ok := c.families[family]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	e, ok := bucket[id]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	delete(bucket, id)
	e.popped = true
	c.mu.Unlock()

	e.timer.Stop()
	return e.data, true
}

func randomUint16() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is unrecoverable for the process anyway;
		// fall back to a weaker but still uniform-ish source rather than
		// panicking on a correlation id.
		return uint16(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint16(buf[:])
}
