package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chimera-pool/chimera-pool-core/internal/migration"
)

// #region fixture-types

// Fixture is a scripted migration run.
type Fixture struct {
	Description string            `json:"description" yaml:"description"`
	Active      string            `json:"active" yaml:"active"`
	Sampler     string            `json:"sampler,omitempty" yaml:"sampler,omitempty"` // "hash" (default) | "random"
	Config      *migration.Config `json:"config,omitempty" yaml:"config,omitempty"`
	Steps       []Step            `json:"steps" yaml:"steps"`
}

// Op names a scenario step.
type Op string

const (
	OpStage       Op = "stage"
	OpStart       Op = "start"
	OpRequests    Op = "requests"
	OpSetFailRate Op = "set_fail_rate"
	OpAdvance     Op = "advance"
	OpRun         Op = "run"
	OpRollback    Op = "rollback"
	OpCheck       Op = "check"
)

// Step is one scripted action. Only the fields relevant to Op are read.
type Step struct {
	Op Op `json:"op" yaml:"op"`

	// stage
	Engine  string `json:"engine,omitempty" yaml:"engine,omitempty"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// stage, set_fail_rate
	FailRate float64 `json:"fail_rate,omitempty" yaml:"fail_rate,omitempty"`

	// requests, run (per round)
	Count int `json:"count,omitempty" yaml:"count,omitempty"`
	// run
	MaxRounds int `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty"`

	Expect *Expect `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// Expect is checked after the step runs. Empty fields are not checked.
type Expect struct {
	State      string   `json:"state,omitempty" yaml:"state,omitempty"`
	Percentage *float64 `json:"percentage,omitempty" yaml:"percentage,omitempty"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"` // error class, or "none"
	Active     string   `json:"active,omitempty" yaml:"active,omitempty"`
	Staging    string   `json:"staging,omitempty" yaml:"staging,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a fixture file. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// MigrationConfig returns the fixture's config, or the production default.
func (f *Fixture) MigrationConfig() migration.Config {
	if f.Config == nil {
		return migration.DefaultConfig()
	}
	return *f.Config
}

// #endregion fixture-loader
