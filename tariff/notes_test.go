package tariff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linehaul/tariff-engine/tariff"
)

func TestDecodeLegacyNotes_FullEncoding(t *testing.T) {
	// GIVEN: A legacy notes column with structured fragments and free text
	additional, vat, remainder, ok := tariff.DecodeLegacyNotes("additional=250;vat=yes;fuel levy incl")

	// THEN: The structured parts become fields, the free text survives
	assert.True(t, ok)
	assert.True(t, additional.Equal(mustDec("250")))
	assert.True(t, vat)
	assert.Equal(t, "fuel levy incl", remainder)
}

func TestDecodeLegacyNotes_NoEncoding(t *testing.T) {
	additional, vat, remainder, ok := tariff.DecodeLegacyNotes("standard contract, reviewed annually")
	assert.False(t, ok)
	assert.True(t, additional.IsZero())
	assert.False(t, vat)
	assert.Equal(t, "standard contract, reviewed annually", remainder)
}

func TestDecodeLegacyNotes_VatSpellings(t *testing.T) {
	for _, in := range []string{"vat=yes", "vat=true", "VAT=1", "includes_vat=y"} {
		_, vat, _, ok := tariff.DecodeLegacyNotes(in)
		assert.True(t, ok, "input %q", in)
		assert.True(t, vat, "input %q", in)
	}
	_, vat, _, ok := tariff.DecodeLegacyNotes("vat=no")
	assert.True(t, ok)
	assert.False(t, vat)
}

func TestDecodeLegacyNotes_BadAdditionalValue_StaysInNotes(t *testing.T) {
	// Unparseable or negative amounts are not silently zeroed; the
	// fragment stays in the free text for a human to look at.
	additional, _, remainder, ok := tariff.DecodeLegacyNotes("additional=abc;vat=yes")
	assert.True(t, ok) // the vat fragment still decoded
	assert.True(t, additional.IsZero())
	assert.Equal(t, "additional=abc", remainder)

	additional, _, remainder, _ = tariff.DecodeLegacyNotes("additional=-50")
	assert.True(t, additional.IsZero())
	assert.Equal(t, "additional=-50", remainder)
}

func TestDecodeLegacyNotes_Empty(t *testing.T) {
	_, _, remainder, ok := tariff.DecodeLegacyNotes("")
	assert.False(t, ok)
	assert.Empty(t, remainder)
}
