package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyPrefix marks generated secrets so leaked keys are easy to grep for.
const KeyPrefix = "kudos_sk_"

// HashAPIKey is the value stored in api_keys.key_hash. Only the hash is
// persisted; the raw secret is shown once at creation.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
