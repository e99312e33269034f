package loadgen

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen map[uint64]bool
	fail func(n uint64) bool
}

func (r *recorder) ProcessRequest(input []byte) ([]byte, error) {
	n := binary.LittleEndian.Uint64(input)
	r.mu.Lock()
	r.seen[n] = true
	r.mu.Unlock()
	if r.fail != nil && r.fail(n) {
		return nil, errors.New("injected")
	}
	return input[:8], nil
}

func TestRun_FixedRequestCount(t *testing.T) {
	r := &recorder{seen: map[uint64]bool{}, fail: func(n uint64) bool { return n%10 == 0 }}
	res, err := Run(context.Background(), r, Config{Workers: 4, Requests: 200, PayloadSize: 32})
	require.NoError(t, err)

	assert.Equal(t, uint64(200), res.Sent)
	assert.Equal(t, uint64(20), res.Failed)
	assert.Len(t, r.seen, 200)
	for n := uint64(1); n <= 200; n++ {
		assert.True(t, r.seen[n], "request %d not sent", n)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := &recorder{seen: map[uint64]bool{}}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, r, Config{Workers: 2})
	require.NoError(t, err)
	assert.Positive(t, res.Sent)
}

func TestRun_RateLimited(t *testing.T) {
	r := &recorder{seen: map[uint64]bool{}}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, r, Config{Workers: 2, RatePerSec: 50})
	require.NoError(t, err)
	// burst of 2 plus ~10 over 200ms
	assert.LessOrEqual(t, res.Sent, uint64(20))
	assert.Positive(t, res.Sent)
}
