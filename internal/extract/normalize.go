package extract

import (
	"strconv"
	"strings"
)

// Values treated as "no measurement" rather than a parse failure.
var absentTokens = map[string]bool{
	"":     true,
	"-":    true,
	"n/a":  true,
	"na":   true,
	"none": true,
	"tbd":  true,
}

// ParseMeasurement converts a raw table cell into a float64. Lab forms
// arrive with thousands separators, unit suffixes in parentheses,
// currency glyphs from mis-detected columns and the occasional Unicode
// minus sign, so everything is stripped down to a plain decimal before
// conversion. The second return value is false when the cell holds no
// usable number.
func ParseMeasurement(raw string) (float64, bool) {
	text := strings.TrimSpace(raw)
	if absentTokens[strings.ToLower(text)] {
		return 0, false
	}

	// Drop a trailing parenthetical unit suffix such as "(ng/uL)".
	if idx := strings.Index(text, "("); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}

	var b strings.Builder
	for _, r := range text {
		switch r {
		case ',', '$', '€', '£':
			// thousands separator or currency noise
		case '−': // Unicode minus
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	text = strings.TrimSpace(b.String())

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// NormalizeHeaderToken canonicalizes a table header cell for fuzzy
// matching: lower-case, collapsed whitespace, micro-sign variants
// unified to a plain "u", periods removed.
func NormalizeHeaderToken(token string) string {
	text := strings.ToLower(strings.TrimSpace(token))
	text = strings.ReplaceAll(text, "µ", "u")
	text = strings.ReplaceAll(text, "μ", "u")
	text = strings.Join(strings.Fields(text), " ")
	return strings.ReplaceAll(text, ".", "")
}

// NormalizeHeader applies NormalizeHeaderToken to every cell.
func NormalizeHeader(header []string) []string {
	normalized := make([]string, len(header))
	for i, cell := range header {
		normalized[i] = NormalizeHeaderToken(cell)
	}
	return normalized
}
