package utils

import "strings"

// NormalizePhone canonicalizes a raw phone number into international form.
// All characters except digits and a leading '+' are stripped. When the
// number carries no '+' prefix, a single leading zero is dropped and
// defaultPrefix (e.g. "+40") is prepended.
//
// The function is total: malformed input yields a best-effort canonical
// string rather than an error, since phone data from upstream order forms
// is not validated here.
func NormalizePhone(raw, defaultPrefix string) string {
	raw = strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(raw, "+")

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if hasPlus {
		return "+" + digits
	}

	digits = strings.TrimPrefix(digits, "0")
	if !strings.HasPrefix(defaultPrefix, "+") {
		defaultPrefix = "+" + defaultPrefix
	}
	return defaultPrefix + digits
}
