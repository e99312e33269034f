package engine

import (
	"math"
	"sync/atomic"
)

// Faulty wraps an engine and fails a fixed share of Hash calls. Failures are
// spread evenly: with rate 0.3, three of every ten consecutive calls fail.
type Faulty struct {
	inner Engine
	name  string
	ver   string
	rate  atomic.Uint64 // math.Float64bits of the failure rate
	calls atomic.Uint64
}

// NewFaulty wraps inner. name and version override the inner identity when
// non-empty so a faulty copy can be staged next to its healthy original.
func NewFaulty(inner Engine, name, version string, rate float64) *Faulty {
	if name == "" {
		name = inner.Name()
	}
	if version == "" {
		version = inner.Version()
	}
	f := &Faulty{inner: inner, name: name, ver: version}
	f.SetRate(rate)
	return f
}

func (f *Faulty) Name() string    { return f.name }
func (f *Faulty) Version() string { return f.ver }

// SetRate changes the failure rate, clamped to [0, 1]. A canary can be
// staged healthy and degraded once traffic reaches it.
func (f *Faulty) SetRate(rate float64) {
	f.rate.Store(math.Float64bits(min(max(rate, 0), 1)))
}

// Rate returns the current failure rate.
func (f *Faulty) Rate() float64 { return math.Float64frombits(f.rate.Load()) }

// Calls returns how many Hash calls the wrapper has seen.
func (f *Faulty) Calls() uint64 { return f.calls.Load() }

func (f *Faulty) Hash(input []byte) ([]byte, error) {
	n := f.calls.Add(1)
	if shouldFail(n, f.Rate()) {
		return nil, &Error{Engine: f.name, Op: "hash", Err: ErrInjected}
	}
	return f.inner.Hash(input)
}

func (f *Faulty) Verify(input, target []byte, nonce uint64) (bool, error) {
	return VerifyWith(f.name, f.Hash, input, target, nonce)
}

// shouldFail fails call n when floor(n*rate) advances, which yields exactly
// round-down(n*rate) failures after n calls.
func shouldFail(n uint64, rate float64) bool {
	switch {
	case rate <= 0:
		return false
	case rate >= 1:
		return true
	}
	return uint64(float64(n)*rate) > uint64(float64(n-1)*rate)
}
