package engine

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
)

// #region registry
// Registry maps engine names to instances.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// DefaultRegistry returns a registry holding blake2s, scrypt and sha256d.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewBlake2s())
	r.Register(NewScrypt(LitecoinParams()))
	r.Register(NewSha256d())
	return r
}

// Register adds or replaces the engine under its Name().
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	return e, nil
}

// List returns registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hash hashes input with the named engine.
func (r *Registry) Hash(name string, input []byte) ([]byte, error) {
	e, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return e.Hash(input)
}

// Verify checks input+nonce against target with the named engine.
func (r *Registry) Verify(name string, input, target []byte, nonce uint64) (bool, error) {
	e, err := r.Get(name)
	if err != nil {
		return false, err
	}
	return e.Verify(input, target, nonce)
}

// #endregion registry

// #region known-vectors
// KnownVectors returns the known-answer vectors shipped for the reference
// engines, keyed by engine name.
func KnownVectors() map[string][]Vector {
	return map[string][]Vector{
		"blake2s": {
			{Input: []byte(""), Expected: mustHex("69217a3079908094e11121d042354a7c1f55b6482ca1a51e1b250dfd1ed0eef9")},
			{Input: []byte("abc"), Expected: mustHex("508c5e8c327c14e2e1a72ba34eeb452f37458b209ed63a294d999b4c86675982")},
		},
		"sha256d": {
			{Input: []byte(""), Expected: mustHex("5df6e0e2761359d30a8275058e299fcc0381534545f55cf43e41983f5d4c9456")},
			{Input: []byte("hello"), Expected: mustHex("9595c9df90075148eb06860365df33584b75bff782a510c6cd4883a419833d50")},
		},
		"scrypt": {
			{Input: []byte("abc"), Expected: mustHex("e652c1c3b7a8cd99d2edc49d4509f545c80e4395765e7225c4dde5d80dd76519")},
			{Input: []byte("hello"), Expected: mustHex("8580e8e623b0b75068bb0a55fa2e18cbd1a269747963d05c32615664f8fb4957")},
		},
	}
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// #endregion known-vectors
