package fmp

import (
	"errors"
	"sync"
)

// ErrNoCredentials is returned when a pool is created without any API keys.
var ErrNoCredentials = errors.New("credential pool requires at least one API key")

// CredentialPool holds an ordered set of provider API keys and hands them out
// round-robin. The cursor is shared for the lifetime of the pool and advances
// on every Next call, wrapping at the end, so consecutive requests spread load
// across all keys regardless of whether earlier requests succeeded.
type CredentialPool struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewCredentialPool creates a pool over the given keys.
func NewCredentialPool(keys []string) (*CredentialPool, error) {
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}
	pool := &CredentialPool{keys: make([]string, len(keys))}
	copy(pool.keys, keys)
	return pool, nil
}

// Next advances the cursor and returns the key it lands on.
func (p *CredentialPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.idx = (p.idx + 1) % len(p.keys)
	return p.keys[p.idx]
}

// Size returns the number of keys in the pool.
func (p *CredentialPool) Size() int {
	return len(p.keys)
}
