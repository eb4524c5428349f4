package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainGraph separates graph fingerprints from any other hash the
// pipeline might compute over the same bytes.
const DomainGraph = "lalinference/graph/v1"

// Hash returns SHA256(domain || 0x00 || canonical(v)) as lowercase hex.
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
