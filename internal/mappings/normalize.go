package mappings

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var skuFolder = cases.Fold()

// NormalizeExternalSku produces the lookup key for an external SKU: trimmed,
// case-folded, inner whitespace collapsed to single spaces. Matching and the
// mapping uniqueness constraint both operate on this form, so the same
// transformation must be applied everywhere a SKU enters the system.
func NormalizeExternalSku(sku string) string {
	s := strings.TrimSpace(sku)
	if s == "" {
		return ""
	}
	s = skuFolder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeLocationCode produces the lookup key for an external location code.
// Location codes are upper-cased rather than case-folded since channels emit
// them as short ASCII identifiers (e.g. warehouse codes).
func NormalizeLocationCode(code string) string {
	s := strings.TrimSpace(code)
	if s == "" {
		return ""
	}
	s = strings.ToUpper(s)
	return strings.Join(strings.Fields(s), " ")
}

// RemoveDiacritics strips combining marks so free-text search over mapping
// notes and display names is accent-insensitive.
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// ParseBoolToken interprets the boolean tokens accepted in bulk import files.
// Returns (value, ok); ok is false for unrecognized tokens.
func ParseBoolToken(token string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "true", "t", "yes", "y", "1", "active":
		return true, true
	case "false", "f", "no", "n", "0", "inactive":
		return false, true
	default:
		return false, false
	}
}
