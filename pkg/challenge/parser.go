package challenge

import (
	"net/http"
	"strings"

	"apisession/pkg/logging"
)

// Parse parses a single WWW-Authenticate header value into its challenges.
//
// It never fails: an empty value yields an empty list, and fragments that
// cannot be interpreted are dropped with their position logged. Duplicate
// schemes are preserved as separate entries in server order.
func Parse(value string) Challenges {
	var (
		challenges Challenges
		current    *Challenge
	)

	for _, seg := range splitSegments(value) {
		text := strings.TrimSpace(seg.text)
		if text == "" {
			continue
		}

		word, rest := splitFirstWord(text)

		// A segment opening with key=value continues the current challenge.
		if strings.Contains(word, "=") && !isToken68(word) {
			if current == nil {
				logging.Debug("Challenge", "Dropping parameter without a scheme at offset %d: %q", seg.offset, text)
				continue
			}
			parseParamsInto(current.Params, text, seg.offset)
			continue
		}

		if !isToken(word) {
			logging.Debug("Challenge", "Dropping malformed fragment at offset %d: %q", seg.offset, text)
			continue
		}

		// Bare identifier not followed by '=' starts a new challenge.
		if current != nil {
			challenges = append(challenges, *current)
		}
		current = &Challenge{Scheme: word, Params: NewParams()}

		rest = strings.TrimSpace(rest)
		switch {
		case rest == "":
		case strings.Contains(rest, "="):
			if isToken68(rest) {
				current.Token68 = rest
			} else {
				parseParamsInto(current.Params, rest, seg.offset)
			}
		case isToken68(rest):
			current.Token68 = rest
		default:
			logging.Debug("Challenge", "Dropping unrecognized challenge data at offset %d: %q", seg.offset, rest)
		}
	}

	if current != nil {
		challenges = append(challenges, *current)
	}

	return challenges
}

// ParseAll parses several WWW-Authenticate header values, as returned by
// http.Header.Values, preserving their order.
func ParseAll(values []string) Challenges {
	var challenges Challenges
	for _, value := range values {
		challenges = append(challenges, Parse(value)...)
	}
	return challenges
}

// FromResponse extracts and parses all WWW-Authenticate headers carried by
// an HTTP response. Returns an empty list if the response has none.
func FromResponse(resp *http.Response) Challenges {
	if resp == nil {
		return nil
	}
	return ParseAll(resp.Header.Values("WWW-Authenticate"))
}

// segment is a top-level comma-delimited piece of a header value.
type segment struct {
	text   string
	offset int
}

// splitSegments splits a header value on commas that are outside quoted
// strings. Quoted strings may contain commas and equals signs; those must
// not be treated as delimiters.
func splitSegments(value string) []segment {
	var (
		segments []segment
		start    = 0
		inQuotes = false
	)

	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\\':
			if inQuotes {
				i++ // skip escaped char
			}
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				segments = append(segments, segment{text: value[start:i], offset: start})
				start = i + 1
			}
		}
	}
	if start <= len(value) {
		segments = append(segments, segment{text: value[start:], offset: start})
	}

	return segments
}

// splitFirstWord splits off the first whitespace-delimited word. The first
// word of a segment is never quoted, so plain scanning is sufficient.
func splitFirstWord(s string) (word, rest string) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// parseParamsInto scans one or more key=value pairs from s into params.
// Values may be bare tokens or quoted strings with backslash escapes.
// RFC 7235 separates params with commas (handled by splitSegments), but
// some servers space-separate them; both are accepted here.
func parseParamsInto(params *Params, s string, offset int) {
	i := 0
	for i < len(s) {
		// Skip separators.
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			return
		}

		keyStart := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		key := s[keyStart:i]

		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) || s[i] != '=' || key == "" || !isToken(key) {
			logging.Debug("Challenge", "Dropping malformed parameter at offset %d: %q", offset+keyStart, s[keyStart:])
			return
		}
		i++ // consume '='
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}

		var value string
		if i < len(s) && s[i] == '"' {
			value, i = scanQuoted(s, i)
		} else {
			valueStart := i
			for i < len(s) && s[i] != ' ' && s[i] != '\t' {
				i++
			}
			value = s[valueStart:i]
		}

		params.Set(key, value)
	}
}

// scanQuoted reads a quoted string starting at s[i] == '"', handling
// backslash escapes. Returns the unquoted value and the index after the
// closing quote. An unterminated quote consumes the remainder.
func scanQuoted(s string, i int) (string, int) {
	var b strings.Builder
	i++ // opening quote
	for i < len(s) {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			i++
		case '"':
			return b.String(), i + 1
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), i
}

// isToken reports whether s is a valid HTTP token per RFC 7230.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// isToken68 reports whether s looks like a token68 blob: base64-style
// characters with optional trailing padding. Equals signs are only valid
// at the end, which is what distinguishes "abcdef==" from "key=value".
func isToken68(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	for i < len(s) && isToken68Char(s[i]) {
		i++
	}
	if i == 0 {
		return false
	}
	for i < len(s) && s[i] == '=' {
		i++
	}
	return i == len(s)
}

func isToken68Char(c byte) bool {
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
		return true
	}
	switch c {
	case '-', '.', '_', '~', '+', '/':
		return true
	}
	return false
}
