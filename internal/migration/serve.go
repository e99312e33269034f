package migration

import (
	"encoding/binary"
	"slices"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
	"github.com/chimera-pool/chimera-pool-core/internal/router"
	"github.com/chimera-pool/chimera-pool-core/internal/telemetry"
)

// ProcessRequest hashes input with the engine the routing policy selects.
// It fails only when the active engine itself fails: candidate failures fall
// back to the active engine and are counted in the migration metrics.
func (c *Controller) ProcessRequest(input []byte) ([]byte, error) {
	return serve(c, input, func(e engine.Engine) ([]byte, error) {
		return e.Hash(input)
	})
}

// VerifyRequest is ProcessRequest for verification calls. The routing key
// is input plus nonce, so nonces tried against one input split like
// distinct requests.
func (c *Controller) VerifyRequest(input, target []byte, nonce uint64) (bool, error) {
	key := binary.LittleEndian.AppendUint64(slices.Clip(input), nonce)
	return serve(c, key, func(e engine.Engine) (bool, error) {
		return e.Verify(input, target, nonce)
	})
}

func serve[T any](c *Controller, key []byte, call func(engine.Engine) (T, error)) (T, error) {
	// Slot before control state: a rollback publishes its state before a
	// later Stage installs a new candidate, so a migrating state is never
	// paired with a candidate that has not been validated.
	active, candidate := c.slot.Read()
	cur := c.ctrl.Load()

	mode, p := cur.state.routing()
	if candidate == nil {
		mode = router.Passthrough
	}
	d := c.router.Route(mode, p, key)

	if d.Primary == router.Candidate {
		out, err := call(candidate)
		c.metrics.RecordMigration(err == nil)
		if err == nil {
			telemetry.RecordRouted("candidate", "ok")
			return out, nil
		}
		out, err = call(active)
		if err != nil {
			telemetry.RecordRouted("active", "error")
			return out, err
		}
		telemetry.RecordRouted("active", "fallback")
		return out, nil
	}

	out, err := call(active)
	if d.ShadowCandidate {
		_, shadowErr := call(candidate)
		c.metrics.RecordShadow(shadowErr == nil)
		telemetry.RecordShadow(shadowErr == nil)
	}
	if err != nil {
		telemetry.RecordRouted("active", "error")
		return out, err
	}
	telemetry.RecordRouted("active", "ok")
	return out, nil
}
