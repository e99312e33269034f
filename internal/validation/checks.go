package validation

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
)

var (
	sampleA = []byte("hotswap validation sample")
	sampleB = []byte("hotswap validation sample, second input")
)

// Check is one test run against a staged candidate. Implementations should
// return promptly once ctx is done; the pipeline enforces the deadline either way.
type Check interface {
	Kind() Kind
	Severity() Severity
	Run(ctx context.Context, s Subject) Result
}

// DefaultChecks returns the five checks in report order.
func DefaultChecks(cfg Config) []Check {
	return []Check{
		compatibilityCheck{},
		performanceCheck{target: cfg.PerformanceTarget, window: cfg.PerformanceWindow, warnBelow: cfg.PerformanceWarnBelow},
		securityCheck{},
		vectorCheck{vectors: cfg.Vectors},
		memoryCheck{limit: cfg.MemoryLimitBytes, samples: cfg.MemorySamples},
	}
}

func pass() Result { return Result{Pass: true} }

func fail(format string, args ...any) Result {
	return Result{Detail: fmt.Sprintf(format, args...)}
}

// #region compatibility
// compatibilityCheck verifies the candidate identifies itself and produces
// digests shaped like the engine it would replace.
type compatibilityCheck struct{}

func (compatibilityCheck) Kind() Kind         { return KindCompatibility }
func (compatibilityCheck) Severity() Severity { return Blocking }

func (compatibilityCheck) Run(ctx context.Context, s Subject) Result {
	c := s.Candidate
	if c.Name() == "" || c.Version() == "" {
		return fail("candidate must report a name and a version")
	}
	if s.Reference != nil && engine.Identity(s.Reference) == engine.Identity(c) {
		return fail("candidate %s is already the active engine", engine.Identity(c))
	}

	first, err := c.Hash(sampleA)
	if err != nil {
		return fail("hash sample: %v", err)
	}
	if len(first) == 0 {
		return fail("hash sample returned an empty digest")
	}
	second, err := c.Hash(sampleB)
	if err != nil {
		return fail("hash sample: %v", err)
	}
	if len(second) != len(first) {
		return fail("digest length unstable: %d then %d bytes", len(first), len(second))
	}

	if s.Reference != nil {
		ref, err := s.Reference.Hash(sampleA)
		if err == nil && len(ref) != len(first) {
			return fail("digest is %d bytes, active engine produces %d", len(first), len(ref))
		}
	}
	return pass()
}

// #endregion compatibility

// #region performance
// performanceCheck hashes for a fixed window and scores the achieved rate
// against target. Advisory: a slow engine is still a correct engine.
type performanceCheck struct {
	target    float64
	window    time.Duration
	warnBelow float64
}

func (performanceCheck) Kind() Kind         { return KindPerformance }
func (performanceCheck) Severity() Severity { return Advisory }

func (p performanceCheck) Run(ctx context.Context, s Subject) Result {
	start := time.Now()
	var n int
	for n == 0 || time.Since(start) < p.window {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Candidate.Hash(sampleA); err != nil {
			return fail("benchmark hash: %v", err)
		}
		n++
	}
	elapsed := time.Since(start)

	score := 1.0
	if p.target > 0 && elapsed > 0 {
		score = min(1.0, float64(n)/elapsed.Seconds()/p.target)
	}
	r := Result{Pass: score >= p.warnBelow, Score: score}
	if !r.Pass {
		r.Detail = fmt.Sprintf("performance score %.2f below %.2f", score, p.warnBelow)
	}
	return r
}

// #endregion performance

// #region security
// securityCheck exercises the target-comparison edge cases every engine must
// honour: an empty target never satisfies, all-0xFF always does, all-zero
// never does.
type securityCheck struct{}

func (securityCheck) Kind() Kind         { return KindSecurity }
func (securityCheck) Severity() Severity { return Blocking }

func (securityCheck) Run(ctx context.Context, s Subject) Result {
	c := s.Candidate
	digest, err := c.Hash(nil)
	if err != nil {
		return fail("hash of empty input: %v", err)
	}
	size := max(len(digest), 1)

	cases := []struct {
		name   string
		target []byte
		want   bool
	}{
		{"empty target", nil, false},
		{"all-0xFF target", bytes.Repeat([]byte{0xFF}, size), true},
		{"all-zero target", make([]byte, size), false},
	}
	for _, tc := range cases {
		if ctx.Err() != nil {
			return fail("%v", ctx.Err())
		}
		got, err := c.Verify(sampleA, tc.target, 0)
		if err != nil {
			return fail("verify with %s: %v", tc.name, err)
		}
		if got != tc.want {
			return fail("verify with %s returned %t", tc.name, got)
		}
	}
	return pass()
}

// #endregion security

// #region vectors
// vectorCheck replays known-answer vectors for the candidate's name. Engines
// without vectors must at least be deterministic and input-sensitive.
type vectorCheck struct {
	vectors map[string][]engine.Vector
}

func (vectorCheck) Kind() Kind         { return KindTestVectors }
func (vectorCheck) Severity() Severity { return Blocking }

func (v vectorCheck) Run(ctx context.Context, s Subject) Result {
	c := s.Candidate
	if vecs := v.vectors[c.Name()]; len(vecs) > 0 {
		for i, vec := range vecs {
			if ctx.Err() != nil {
				return fail("%v", ctx.Err())
			}
			got, err := c.Hash(vec.Input)
			if err != nil {
				return fail("vector %d: %v", i, err)
			}
			if !bytes.Equal(got, vec.Expected) {
				return fail("vector %d: digest %x, want %x", i, got, vec.Expected)
			}
		}
		return pass()
	}

	a1, err := c.Hash(sampleA)
	if err != nil {
		return fail("determinism sample: %v", err)
	}
	a2, err := c.Hash(sampleA)
	if err != nil {
		return fail("determinism sample: %v", err)
	}
	if !bytes.Equal(a1, a2) {
		return fail("same input hashed to different digests")
	}
	b, err := c.Hash(sampleB)
	if err != nil {
		return fail("determinism sample: %v", err)
	}
	if bytes.Equal(a1, b) {
		return fail("different inputs hashed to the same digest")
	}
	return pass()
}

// #endregion vectors

// #region memory
// memoryCheck measures heap allocated per hash. The figure is process-wide,
// so concurrent work inflates it; the check is advisory for that reason.
type memoryCheck struct {
	limit   uint64
	samples int
}

func (memoryCheck) Kind() Kind         { return KindMemory }
func (memoryCheck) Severity() Severity { return Advisory }

func (m memoryCheck) Run(ctx context.Context, s Subject) Result {
	samples := max(m.samples, 1)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	for i := 0; i < samples; i++ {
		if ctx.Err() != nil {
			return fail("%v", ctx.Err())
		}
		if _, err := s.Candidate.Hash(sampleA); err != nil {
			return fail("memory sample: %v", err)
		}
	}
	runtime.ReadMemStats(&after)

	perHash := (after.TotalAlloc - before.TotalAlloc) / uint64(samples)
	if m.limit > 0 && perHash > m.limit {
		return fail("allocates %d bytes per hash, limit %d", perHash, m.limit)
	}
	return pass()
}

// #endregion memory
