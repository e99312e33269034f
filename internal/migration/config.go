package migration

import (
	"errors"
	"fmt"
	"slices"
)

// #region config
// Config is fixed for the lifetime of one migration. StartMigration copies
// the controller's current Config into the migration it starts.
type Config struct {
	ShadowSampleThreshold uint64    `yaml:"shadow_sample_threshold" json:"shadow_sample_threshold" validate:"gte=1"`
	ShadowRate            float64   `yaml:"shadow_rate" json:"shadow_rate" validate:"gt=0,lte=1"`
	RampSteps             []float64 `yaml:"ramp_steps" json:"ramp_steps" validate:"min=1,dive,gt=0,lte=1"`
	MaxErrorRate          float64   `yaml:"max_error_rate" json:"max_error_rate" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the production ramp.
func DefaultConfig() Config {
	return Config{
		ShadowSampleThreshold: 50,
		ShadowRate:            1.0,
		RampSteps:             []float64{0.01, 0.05, 0.10, 0.25, 0.50, 0.75, 1.0},
		MaxErrorRate:          0.05,
	}
}

// Validate checks the semantic rules the struct tags cannot express.
func (c Config) Validate() error {
	if c.ShadowSampleThreshold == 0 {
		return errors.New("shadow sample threshold must be positive")
	}
	if c.ShadowRate <= 0 || c.ShadowRate > 1 {
		return fmt.Errorf("shadow rate %v outside (0, 1]", c.ShadowRate)
	}
	if c.MaxErrorRate < 0 || c.MaxErrorRate > 1 {
		return fmt.Errorf("max error rate %v outside [0, 1]", c.MaxErrorRate)
	}
	if len(c.RampSteps) == 0 {
		return errors.New("ramp steps must not be empty")
	}
	for i, p := range c.RampSteps {
		if p <= 0 || p > 1 {
			return fmt.Errorf("ramp step %d (%v) outside (0, 1]", i, p)
		}
		if i > 0 && p <= c.RampSteps[i-1] {
			return fmt.Errorf("ramp steps must be strictly ascending: %v after %v", p, c.RampSteps[i-1])
		}
	}
	if last := c.RampSteps[len(c.RampSteps)-1]; last != 1.0 {
		return fmt.Errorf("last ramp step must be 1.0, got %v", last)
	}
	return nil
}

func (c Config) clone() Config {
	c.RampSteps = slices.Clone(c.RampSteps)
	return c
}

// nextStep returns the first ramp step above p.
func (c Config) nextStep(p float64) (float64, bool) {
	for _, step := range c.RampSteps {
		if step > p {
			return step, true
		}
	}
	return 0, false
}

// #endregion config
