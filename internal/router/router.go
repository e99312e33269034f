// Package router decides, per request, which engine serves it and whether
// the candidate is additionally called for measurement.
package router

import (
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// #region role
// Role identifies which engine a request is served by.
type Role int

const (
	Active Role = iota
	Candidate
)

func (r Role) String() string {
	if r == Candidate {
		return "candidate"
	}
	return "active"
}

// #endregion role

// #region mode
// Mode is the routing-relevant projection of a migration state.
type Mode int

const (
	// Passthrough serves everything from the active engine.
	Passthrough Mode = iota
	// Shadow serves from active and also calls the candidate at the given rate.
	Shadow
	// Gradual serves the given share of traffic from the candidate.
	Gradual
)

// #endregion mode

// #region decision
// Decision is the outcome of routing one request.
type Decision struct {
	Primary         Role
	ShadowCandidate bool
}

// #endregion decision

// #region sampler
// Sampler maps a request to a draw in [0, 1).
type Sampler interface {
	Sample(key []byte) float64
}

// RandomSampler draws independently per request, ignoring the key.
type RandomSampler struct{}

func (RandomSampler) Sample([]byte) float64 { return rand.Float64() }

// HashSampler derives the draw from the request key, so the same key always
// routes the same way at a given percentage.
type HashSampler struct{}

func (HashSampler) Sample(key []byte) float64 {
	// top 53 bits give an exactly representable float in [0, 1)
	return float64(xxhash.Sum64(key)>>11) / (1 << 53)
}

// #endregion sampler

// #region router
// Router applies the percentage policy. Safe for concurrent use when its
// sampler is.
type Router struct {
	sampler Sampler
}

// New returns a router. A nil sampler uses RandomSampler.
func New(s Sampler) *Router {
	if s == nil {
		s = RandomSampler{}
	}
	return &Router{sampler: s}
}

// Route decides how to serve the request identified by key.
func (r *Router) Route(mode Mode, percentage float64, key []byte) Decision {
	switch mode {
	case Shadow:
		return Decision{Primary: Active, ShadowCandidate: r.hit(percentage, key)}
	case Gradual:
		if r.hit(percentage, key) {
			return Decision{Primary: Candidate}
		}
		return Decision{Primary: Active}
	default:
		return Decision{Primary: Active}
	}
}

func (r *Router) hit(percentage float64, key []byte) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 1 {
		return true
	}
	return r.sampler.Sample(key) < percentage
}

// #endregion router
