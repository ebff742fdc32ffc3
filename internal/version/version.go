// Package version negotiates the response schema version from an Accept-style header.
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Fallback is used when neither the header nor the configured default yield a token.
const Fallback = "1.0"

// Resolve returns the value of the first "version=<token>" parameter in header,
// or def when there is none. Segments are split on ';'. The parameter name must
// equal "version" (case-insensitive, surrounding blanks ignored); a segment that
// merely contains the word, or has no '=', is skipped. The token ends at the
// first ',' so a following media range is not captured. Resolve never returns
// an empty string.
func Resolve(header, def string) string {
	if def == "" {
		def = Fallback
	}
	for seg := range strings.SplitSeq(header, ";") {
		name, value, ok := strings.Cut(seg, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "version") {
			continue
		}
		value, _, _ = strings.Cut(value, ",")
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if value == "" {
			return def
		}
		return value
	}
	return def
}

// Since reports whether version v is at least min. Tokens are compared as
// dotted numbers ("1.0" < "1.10" < "2.0"); a token that does not parse sorts
// before every valid one.
func Since(v, min string) bool {
	return semver.Compare(canonical(v), canonical(min)) >= 0
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
