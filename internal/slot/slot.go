// Package slot holds the active engine and at most one staged candidate.
//
// Readers load an immutable pair through a single atomic pointer, so the
// active and candidate references are always observed together and the
// active engine is never seen missing. Writers are serialized by a mutex and
// publish a fresh pair on every change.
package slot

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
)

var (
	ErrAlreadyStaged = errors.New("candidate already staged")
	ErrNoCandidate   = errors.New("no candidate staged")
	ErrNilEngine     = errors.New("nil engine")
)

type pair struct {
	active    engine.Engine
	candidate engine.Engine
}

// Slot is safe for unbounded concurrent readers.
type Slot struct {
	mu      sync.Mutex
	current atomic.Pointer[pair]
}

// New returns a slot serving initial with no candidate.
func New(initial engine.Engine) (*Slot, error) {
	if initial == nil {
		return nil, ErrNilEngine
	}
	s := &Slot{}
	s.current.Store(&pair{active: initial})
	return s, nil
}

// ReadActive returns the engine serving unconditioned traffic.
func (s *Slot) ReadActive() engine.Engine {
	return s.current.Load().active
}

// ReadCandidate returns the staged candidate, or nil.
func (s *Slot) ReadCandidate() engine.Engine {
	return s.current.Load().candidate
}

// Read returns active and candidate from the same published pair.
func (s *Slot) Read() (active, candidate engine.Engine) {
	p := s.current.Load()
	return p.active, p.candidate
}

// Stage installs candidate. It fails if one is already present.
func (s *Slot) Stage(candidate engine.Engine) error {
	if candidate == nil {
		return ErrNilEngine
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.current.Load()
	if p.candidate != nil {
		return ErrAlreadyStaged
	}
	s.current.Store(&pair{active: p.active, candidate: candidate})
	return nil
}

// Finalize promotes the candidate to active and empties the candidate
// position in one store. Every ReadActive after Finalize returns the new
// engine.
func (s *Slot) Finalize() (previous engine.Engine, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.current.Load()
	if p.candidate == nil {
		return nil, ErrNoCandidate
	}
	s.current.Store(&pair{active: p.candidate})
	return p.active, nil
}

// ClearCandidate discards any staged candidate. No-op when none is present.
func (s *Slot) ClearCandidate() (discarded engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.current.Load()
	if p.candidate == nil {
		return nil
	}
	s.current.Store(&pair{active: p.active})
	return p.candidate
}
