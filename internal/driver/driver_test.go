package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-pool/chimera-pool-core/internal/migration"
)

// scripted replays a fixed list of advance outcomes.
type scripted struct {
	mu     sync.Mutex
	steps  []step
	calls  int
	status migration.State
}

type step struct {
	state migration.State
	err   error
}

func (s *scripted) AdvanceMigration(context.Context) (migration.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.steps)-1)
	s.calls++
	s.status = s.steps[i].state
	return s.steps[i].state, s.steps[i].err
}

func (s *scripted) Status() migration.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return migration.StatusSnapshot{State: s.status}
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	shadow  = migration.State{Kind: migration.ShadowMode, Percentage: 1}
	gradual = migration.State{Kind: migration.GradualMigration, Percentage: 0.5}
)

func TestRun_RetriesDeferredUntilComplete(t *testing.T) {
	s := &scripted{status: shadow, steps: []step{
		{shadow, migration.ErrAdvanceDeferred},
		{shadow, migration.ErrAdvanceDeferred},
		{gradual, nil},
		{migration.State{Kind: migration.Complete}, nil},
	}}

	st, err := New(s, time.Millisecond, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, migration.Complete, st.Kind)
	assert.Equal(t, 4, s.Calls())
}

func TestRun_StopsOnRollback(t *testing.T) {
	s := &scripted{status: shadow, steps: []step{
		{migration.State{Kind: migration.RollbackComplete}, nil},
	}}
	st, err := New(s, time.Millisecond, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, migration.RollbackComplete, st.Kind)
}

func TestRun_ReturnsHardErrors(t *testing.T) {
	s := &scripted{steps: []step{
		{migration.State{Kind: migration.Idle}, migration.ErrInvalidState},
	}}
	_, err := New(s, time.Millisecond, nil).Run(context.Background())
	assert.ErrorIs(t, err, migration.ErrInvalidState)
}

func TestRun_HonoursContext(t *testing.T) {
	s := &scripted{status: shadow, steps: []step{{shadow, migration.ErrAdvanceDeferred}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	st, err := New(s, time.Millisecond, nil).Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, migration.ShadowMode, st.Kind)
}

func TestWatch_SkipsWhenIdle(t *testing.T) {
	s := &scripted{status: migration.State{Kind: migration.Idle}, steps: []step{{gradual, nil}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := New(s, time.Millisecond, nil).Watch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, s.Calls())
}

func TestWatch_AdvancesWhileMigrating(t *testing.T) {
	s := &scripted{status: shadow, steps: []step{
		{gradual, nil},
		{migration.State{Kind: migration.Complete}, nil},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = New(s, time.Millisecond, nil).Watch(ctx)
	assert.Equal(t, 2, s.Calls(), "watch stops advancing once the migration is terminal")
}
