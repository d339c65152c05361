// Package proof derives stable identifiers from opaque payment proofs.
//
// The gateway never inspects a proof's contents; it only needs a short,
// collision-resistant handle for replay detection and caller attribution.
package proof

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// IDBytes is the identifier width: the first 128 bits of the keccak-256
// digest of the raw proof token.
const IDBytes = 16

// Identifier returns the hex-encoded hash prefix for a raw proof token.
func Identifier(raw string) string {
	sum := sha3.NewLegacyKeccak256()
	sum.Write([]byte(raw))
	return hex.EncodeToString(sum.Sum(nil)[:IDBytes])
}
