package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataMasksContactFields(t *testing.T) {
	out := Metadata(map[string]any{
		"name":  "PT Beton Jaya",
		"email": "finance@betonjaya.co.id",
		"bank": map[string]any{
			"bank_account": "1234567890",
		},
		"contacts": []any{
			map[string]any{"phone": "+62811223344"},
			"unchanged",
		},
	})

	assert.Equal(t, "PT Beton Jaya", out["name"])
	assert.Equal(t, "f****@betonjaya.co.id", out["email"])
	assert.Equal(t, "****7890", out["bank"].(map[string]any)["bank_account"])
	contacts := out["contacts"].([]any)
	assert.Equal(t, "****3344", contacts[0].(map[string]any)["phone"])
	assert.Equal(t, "unchanged", contacts[1])
}

func TestMaskHelpers(t *testing.T) {
	assert.Equal(t, "****", Tail("123"))
	assert.Equal(t, "", Tail("  "))
	assert.Equal(t, "****", Email("abc"))
	assert.Nil(t, Metadata(nil))
}
