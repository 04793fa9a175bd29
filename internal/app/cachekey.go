package app

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// CacheKey derives a deterministic key from the full request query.
// url.Values.Encode sorts parameter names, so two requests that differ only
// in parameter order collapse to the same key. The sanitized prefix keeps
// keys readable in redis-cli; the xxhash suffix keeps them unique once the
// prefix is truncated.
func CacheKey(q url.Values) string {
	canonical := q.Encode()
	safe := sanitizeForKey(canonical)

	const maxReadableLen = 160
	if len(safe) > maxReadableLen {
		safe = safe[:maxReadableLen]
	}

	sum := xxhash.Sum64String(canonical)
	return fmt.Sprintf("reviews:q=%s:h=%016x", safe, sum)
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '=':
			out = r
		default:
			// Any other rune (including non-ASCII and escape sequences) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
