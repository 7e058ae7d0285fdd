package canon

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON returns the RFC 8785 (JCS) canonical form of JSON input.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	return jcs.Transform(input)
}

// HashWithPrevious implements the action stream's chain link: sha256 hex
// of canonicalized bytes concatenated with the previous link's hash (or
// the literal "genesis" for the first chained entry). Shared by the
// stream writer (computing the hash) and the validator (recomputing it),
// so the two can never silently diverge on the concatenation order.
func HashWithPrevious(canonicalized []byte, previous string) (string, error) {
	sum := sha256.Sum256(append(canonicalized, []byte(previous)...))
	return hex.EncodeToString(sum[:]), nil
}
