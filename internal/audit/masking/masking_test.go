package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecretKeepsProviderPrefix(t *testing.T) {
	assert.Equal(t, "cst_****4321", MaskSecret("cst_abcd4321"))
	assert.Equal(t, "mdt_****", MaskSecret("mdt_abc"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "d****@example.org", MaskEmail("donor@example.org"))
}

func TestMaskPIIOnlyTouchesSensitiveKeys(t *testing.T) {
	out := MaskPII(map[string]any{
		"email":    "donor@example.org",
		"order_id": "kdo_abc",
		"nested":   map[string]any{"customer_id": "cst_12345678"},
		"value":    12.5,
	})

	assert.Equal(t, "d****@example.org", out["email"])
	assert.Equal(t, "kdo_abc", out["order_id"])
	assert.Equal(t, "cst_****5678", out["nested"].(map[string]any)["customer_id"])
	assert.Equal(t, 12.5, out["value"])
	assert.Nil(t, MaskPII(nil))
}
