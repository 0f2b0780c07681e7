package tariff

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEGACY NOTES DECODING
// =============================================================================
// Older rate sheets encoded additional charges and the VAT flag inside
// the free-text notes column ("additional=250;vat=yes;fuel levy incl").
// The schema now has dedicated columns; this adapter decodes the legacy
// encoding on import only. Anything it does not recognise stays in the
// notes verbatim.

// DecodeLegacyNotes extracts additional charges and the VAT flag from a
// legacy notes string. It returns the remaining free text with the
// structured fragments stripped, and ok=false when no legacy encoding
// was present.
func DecodeLegacyNotes(notes string) (additional decimal.Decimal, includesVAT bool, remainder string, ok bool) {
	var rest []string
	for _, part := range strings.Split(notes, ";") {
		part = strings.TrimSpace(part)
		key, value, found := strings.Cut(part, "=")
		if !found {
			if part != "" {
				rest = append(rest, part)
			}
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "additional", "additional_charges":
			d, err := decimal.NewFromString(strings.TrimSpace(value))
			if err != nil || d.IsNegative() {
				rest = append(rest, part)
				continue
			}
			additional = d
			ok = true
		case "vat", "includes_vat":
			switch strings.ToLower(strings.TrimSpace(value)) {
			case "yes", "true", "1", "y":
				includesVAT = true
			}
			ok = true
		default:
			rest = append(rest, part)
		}
	}
	return additional, includesVAT, strings.Join(rest, "; "), ok
}
