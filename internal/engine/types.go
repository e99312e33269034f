package engine

import (
	"errors"
	"fmt"
)

// #region engine
// Engine is the processing capability the controller migrates between.
// Implementations must be safe for concurrent use.
type Engine interface {
	Name() string
	Version() string
	Hash(input []byte) ([]byte, error)
	Verify(input, target []byte, nonce uint64) (bool, error)
}

// #endregion engine

// #region errors
var (
	ErrHashFailed    = errors.New("hash failed")
	ErrUnknownEngine = errors.New("unknown engine")
	ErrInjected      = errors.New("injected failure")
)

// Error wraps a failure raised by a specific engine.
type Error struct {
	Engine string
	Op     string // "hash" | "verify"
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine %s: %s: %v", e.Engine, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// #endregion errors

// #region vector
// Vector is a known-answer hash test case.
type Vector struct {
	Input    []byte
	Expected []byte
}

// #endregion vector
