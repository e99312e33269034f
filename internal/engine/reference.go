package engine

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/scrypt"
)

const referenceVersion = "1.0.0"

// #region blake2s
// Blake2s hashes with unkeyed Blake2s-256.
type Blake2s struct{}

func NewBlake2s() *Blake2s { return &Blake2s{} }

func (*Blake2s) Name() string    { return "blake2s" }
func (*Blake2s) Version() string { return referenceVersion }

func (*Blake2s) Hash(input []byte) ([]byte, error) {
	sum := blake2s.Sum256(input)
	return sum[:], nil
}

func (b *Blake2s) Verify(input, target []byte, nonce uint64) (bool, error) {
	return VerifyWith(b.Name(), b.Hash, input, target, nonce)
}

// #endregion blake2s

// #region sha256d
// Sha256d is double SHA-256.
type Sha256d struct{}

func NewSha256d() *Sha256d { return &Sha256d{} }

func (*Sha256d) Name() string    { return "sha256d" }
func (*Sha256d) Version() string { return referenceVersion }

func (*Sha256d) Hash(input []byte) ([]byte, error) {
	first := sha256.Sum256(input)
	second := sha256.Sum256(first[:])
	return second[:], nil
}

func (s *Sha256d) Verify(input, target []byte, nonce uint64) (bool, error) {
	return VerifyWith(s.Name(), s.Hash, input, target, nonce)
}

// #endregion sha256d

// #region scrypt
// ScryptParams are the scrypt cost parameters.
type ScryptParams struct {
	N      int
	R      int
	P      int
	KeyLen int
}

// LitecoinParams returns N=1024, r=1, p=1 with a 32-byte key.
func LitecoinParams() ScryptParams {
	return ScryptParams{N: 1024, R: 1, P: 1, KeyLen: 32}
}

// Scrypt derives a key using the input as both password and salt.
type Scrypt struct {
	params ScryptParams
}

func NewScrypt(params ScryptParams) *Scrypt { return &Scrypt{params: params} }

func (*Scrypt) Name() string    { return "scrypt" }
func (*Scrypt) Version() string { return referenceVersion }

// Params returns the cost parameters the engine was built with.
func (s *Scrypt) Params() ScryptParams { return s.params }

func (s *Scrypt) Hash(input []byte) ([]byte, error) {
	out, err := scrypt.Key(input, input, s.params.N, s.params.R, s.params.P, s.params.KeyLen)
	if err != nil {
		return nil, &Error{Engine: s.Name(), Op: "hash", Err: fmt.Errorf("%w: %v", ErrHashFailed, err)}
	}
	return out, nil
}

func (s *Scrypt) Verify(input, target []byte, nonce uint64) (bool, error) {
	return VerifyWith(s.Name(), s.Hash, input, target, nonce)
}

// #endregion scrypt
