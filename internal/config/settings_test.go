package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceFormatFallsBackToCode(t *testing.T) {
	settings := DefaultSettings()

	assert.Equal(t, "PC/", settings.SequenceFormat(SequenceCertificate).Prefix)

	format := settings.SequenceFormat("stock.picking")
	assert.Equal(t, "STOCK.PICKING/", format.Prefix)
	assert.Equal(t, 5, format.Padding)
}

func TestValidateSettings(t *testing.T) {
	assert.NoError(t, validateSettings(DefaultSettings()))

	bad := DefaultSettings()
	bad.DefaultRetentionRule = " "
	assert.Error(t, validateSettings(bad))

	bad = DefaultSettings()
	bad.Sequences = map[string]SequenceFormat{SequenceVariation: {Prefix: "VO/", Padding: -1}}
	assert.Error(t, validateSettings(bad))
}

func TestStaticHolder(t *testing.T) {
	holder := NewStaticSettingsHolder(DefaultSettings())
	assert.Equal(t, "RET 5%", holder.Get().DefaultRetentionRule)
}
