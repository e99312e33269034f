package slot

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
)

func TestNew_RejectsNil(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilEngine)
}

func TestStage_OnlyOneCandidate(t *testing.T) {
	s, err := New(engine.NewBlake2s())
	require.NoError(t, err)
	assert.Nil(t, s.ReadCandidate())

	first := engine.NewSha256d()
	require.NoError(t, s.Stage(first))
	assert.ErrorIs(t, s.Stage(engine.NewScrypt(engine.LitecoinParams())), ErrAlreadyStaged)
	assert.Same(t, first, s.ReadCandidate())
	assert.ErrorIs(t, s.Stage(nil), ErrNilEngine)
}

func TestFinalize(t *testing.T) {
	initial := engine.NewBlake2s()
	s, err := New(initial)
	require.NoError(t, err)

	_, err = s.Finalize()
	assert.ErrorIs(t, err, ErrNoCandidate)

	next := engine.NewSha256d()
	require.NoError(t, s.Stage(next))
	prev, err := s.Finalize()
	require.NoError(t, err)

	assert.Same(t, initial, prev)
	assert.Same(t, next, s.ReadActive())
	assert.Nil(t, s.ReadCandidate())
}

func TestClearCandidate_Idempotent(t *testing.T) {
	initial := engine.NewBlake2s()
	s, err := New(initial)
	require.NoError(t, err)

	assert.Nil(t, s.ClearCandidate())

	cand := engine.NewSha256d()
	require.NoError(t, s.Stage(cand))
	assert.Same(t, cand, s.ClearCandidate())
	assert.Nil(t, s.ClearCandidate())
	assert.Same(t, initial, s.ReadActive())
}

// Readers spin on ReadActive while a writer repeatedly stages and finalizes.
// No reader may observe a nil active engine, and once Finalize returns the
// writer itself must read the promoted engine.
func TestFinalize_ConcurrentReadersNeverSeeMissingActive(t *testing.T) {
	s, err := New(engine.NewBlake2s())
	require.NoError(t, err)

	var (
		stop    atomic.Bool
		missing atomic.Int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				if s.ReadActive() == nil {
					missing.Add(1)
				}
				active, _ := s.Read()
				if active == nil {
					missing.Add(1)
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		var next engine.Engine = engine.NewSha256d()
		if i%2 == 1 {
			next = engine.NewBlake2s()
		}
		require.NoError(t, s.Stage(next))
		_, err := s.Finalize()
		require.NoError(t, err)
		require.Same(t, next, s.ReadActive())
	}

	stop.Store(true)
	wg.Wait()
	assert.Zero(t, missing.Load())
}
