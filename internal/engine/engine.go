package engine

import (
	"bytes"
	"encoding/binary"
)

// #region identity
// Identity returns the stable "name_version" handle used in status and logs.
func Identity(e Engine) string {
	if e == nil {
		return ""
	}
	return e.Name() + "_" + e.Version()
}

// #endregion identity

// #region target
// MeetsTarget reports whether hash satisfies target. An empty target never
// does, an all-0xFF target always does, otherwise the hash must have the same
// length and compare lexicographically below the target.
func MeetsTarget(hash, target []byte) bool {
	if len(target) == 0 {
		return false
	}
	allFF := true
	for _, b := range target {
		if b != 0xFF {
			allFF = false
			break
		}
	}
	if allFF {
		return true
	}
	return len(hash) == len(target) && bytes.Compare(hash, target) < 0
}

// VerifyWith implements Verify on top of a hash function: the little-endian
// nonce is appended to input before hashing.
func VerifyWith(name string, hash func([]byte) ([]byte, error), input, target []byte, nonce uint64) (bool, error) {
	data := make([]byte, len(input), len(input)+8)
	copy(data, input)
	data = binary.LittleEndian.AppendUint64(data, nonce)

	digest, err := hash(data)
	if err != nil {
		return false, &Error{Engine: name, Op: "verify", Err: err}
	}
	return MeetsTarget(digest, target), nil
}

// #endregion target
