// Package loadgen drives synthetic request traffic through a controller.
package loadgen

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Target serves hash requests.
type Target interface {
	ProcessRequest(input []byte) ([]byte, error)
}

// Config shapes the generated traffic.
type Config struct {
	Workers     int
	RatePerSec  float64 // total across workers; 0 means unlimited
	Requests    uint64  // 0 means run until ctx is done
	PayloadSize int     // minimum 8; the first 8 bytes are the request number
}

// Result summarises a run.
type Result struct {
	Sent    uint64
	Failed  uint64
	Elapsed time.Duration
}

// Run sends requests until cfg.Requests is reached or ctx is done.
// Cancellation is a normal way to stop and is not reported as an error.
func Run(ctx context.Context, target Target, cfg Config) (Result, error) {
	workers := max(cfg.Workers, 1)
	size := max(cfg.PayloadSize, 8)

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), workers)
	}

	var next, sent, failed atomic.Uint64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			payload := make([]byte, size)
			for {
				if gctx.Err() != nil {
					return nil
				}
				n := next.Add(1)
				if cfg.Requests > 0 && n > cfg.Requests {
					return nil
				}
				// Wait fails early when the next token lies past the deadline
				if limiter != nil && limiter.Wait(gctx) != nil {
					return nil
				}
				binary.LittleEndian.PutUint64(payload, n)
				if _, err := target.ProcessRequest(payload); err != nil {
					failed.Add(1)
				}
				sent.Add(1)
			}
		})
	}
	err := g.Wait()
	return Result{Sent: sent.Load(), Failed: failed.Load(), Elapsed: time.Since(start)}, err
}
