package challenge

import (
	"strings"
)

// Challenge is one authentication scheme advertised by a server, together
// with its parameters.
//
// Exactly one of Params and Token68 is populated for challenges that carry
// data: auth-params for schemes like Basic and Bearer, a token68 blob for
// in-progress handshakes like "Negotiate TlRMTVNTUA==". A bare scheme has
// neither.
type Challenge struct {
	// Scheme is the authentication scheme as sent by the server.
	// Comparison is case-insensitive; use Is rather than ==.
	Scheme string

	// Params holds the challenge's auth-params in order of appearance.
	Params *Params

	// Token68 is the opaque continuation blob for handshake schemes.
	Token68 string
}

// Is reports whether the challenge uses the given scheme, compared
// case-insensitively per RFC 7235.
func (c Challenge) Is(scheme string) bool {
	return strings.EqualFold(c.Scheme, scheme)
}

// Format renders the challenge back into header form.
func (c Challenge) Format() string {
	var b strings.Builder
	b.WriteString(c.Scheme)

	if c.Token68 != "" {
		b.WriteByte(' ')
		b.WriteString(c.Token68)
		return b.String()
	}

	for i, key := range c.Params.Keys() {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		value, _ := c.Params.Get(key)
		b.WriteString(key)
		b.WriteString(`="`)
		b.WriteString(escapeQuoted(value))
		b.WriteByte('"')
	}

	return b.String()
}

// Challenges is the ordered list of challenges parsed from one or more
// WWW-Authenticate header values.
type Challenges []Challenge

// Get returns the first challenge using the given scheme.
// Servers may repeat a scheme; first match wins, preserving server order.
func (cs Challenges) Get(scheme string) (Challenge, bool) {
	for _, c := range cs {
		if c.Is(scheme) {
			return c, true
		}
	}
	return Challenge{}, false
}

// Has reports whether any challenge uses the given scheme.
func (cs Challenges) Has(scheme string) bool {
	_, ok := cs.Get(scheme)
	return ok
}

// Schemes returns the scheme names in server order, one entry per challenge.
func (cs Challenges) Schemes() []string {
	schemes := make([]string, 0, len(cs))
	for _, c := range cs {
		schemes = append(schemes, c.Scheme)
	}
	return schemes
}

// Format renders the challenge list back into a single header value.
// Parsing the result yields an equivalent list.
func (cs Challenges) Format() string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.Format())
	}
	return strings.Join(parts, ", ")
}

// Params is an ordered, case-insensitive string map for challenge
// auth-params. Keys keep the casing of their first occurrence; setting an
// existing key replaces its value in place, so within one challenge the
// last occurrence of a duplicated key wins.
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams returns an empty parameter map.
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// Get returns the value for key, compared case-insensitively.
func (p *Params) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.values[strings.ToLower(key)]
	return v, ok
}

// Set stores key=value, replacing any existing value for the key.
func (p *Params) Set(key, value string) {
	lower := strings.ToLower(key)
	if _, exists := p.values[lower]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[lower] = value
}

// Keys returns the parameter names in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return p.keys
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

func escapeQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
