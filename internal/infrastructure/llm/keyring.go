package llm

import (
	"fmt"
	"sync"
)

// KeyRing hands out provider API keys and rotates to the next one after a
// quota rejection. Rotation is cyclic; the ring never invalidates a key
// permanently because quotas replenish.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyRing builds a ring over the configured keys. An empty list is valid
// for keyless local endpoints.
func NewKeyRing(keys []string) *KeyRing {
	return &KeyRing{keys: keys}
}

// Current returns the active key and its audit label.
func (r *KeyRing) Current() (key, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return "", "none"
	}
	return r.keys[r.idx], fmt.Sprintf("key-%d", r.idx+1)
}

// Rotate advances to the next key. It reports false when there is no
// alternative key to rotate to.
func (r *KeyRing) Rotate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) < 2 {
		return false
	}
	r.idx = (r.idx + 1) % len(r.keys)
	return true
}

// Size reports how many keys the ring holds.
func (r *KeyRing) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
