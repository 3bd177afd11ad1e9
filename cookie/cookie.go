// Package cookie implements request Cookie-header parsing and Set-Cookie
// header construction, per bsrvcore's wire-format rules. Parsing trims
// each pair, splits on the first '=', strips surrounding quotes on the
// value, and drops empty names.
package cookie

import (
	"strconv"
	"strings"
)

const trimCutset = " \t\r\n"

// Parse splits a request Cookie header into a name -> value map. Tokens are
// separated by ';', trimmed of whitespace, and split on the first '='.
// Surrounding double quotes on the value are stripped. Tokens with an empty
// name are dropped. Lookup by name is case-sensitive; callers that need a
// case-insensitive scan for the session-id cookie should iterate the
// result.
func Parse(header string) map[string]string {
	out := make(map[string]string)
	if header == "" {
		return out
	}
	for _, tok := range strings.Split(header, ";") {
		name, value := parsePair(tok)
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}

func parsePair(tok string) (name, value string) {
	tok = strings.Trim(tok, trimCutset)
	if tok == "" {
		return "", ""
	}
	eq := strings.IndexByte(tok, '=')
	if eq < 0 {
		return strings.Trim(tok, trimCutset), ""
	}
	name = strings.Trim(tok[:eq], trimCutset)
	value = strings.Trim(tok[eq+1:], trimCutset)
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	return name, value
}

// SameSite enumerates the SameSite cookie attribute.
type SameSite uint8

const (
	// SameSiteUnset omits the SameSite attribute entirely.
	SameSiteUnset SameSite = iota
	SameSiteStrict
	SameSiteLax
	SameSiteNone
)

func (s SameSite) String() string {
	switch s {
	case SameSiteStrict:
		return "Strict"
	case SameSiteLax:
		return "Lax"
	case SameSiteNone:
		return "None"
	default:
		return ""
	}
}

// SetCookie is a builder for a Set-Cookie header value. The zero value is
// an empty builder; field setters return *SetCookie for fluent chaining.
type SetCookie struct {
	name, value string
	hasName, hasValue bool

	expires string
	hasExpires bool

	maxAge    int64
	hasMaxAge bool

	path, domain       string
	hasPath, hasDomain bool

	sameSite    SameSite
	secure      bool
	hasSecure   bool
	httpOnly    bool
}

// SetName sets the cookie name.
func (c *SetCookie) SetName(name string) *SetCookie { c.name, c.hasName = name, true; return c }

// SetValue sets the cookie value.
func (c *SetCookie) SetValue(value string) *SetCookie { c.value, c.hasValue = value, true; return c }

// SetExpires sets the Expires attribute to an already-formatted HTTP date.
func (c *SetCookie) SetExpires(expiry string) *SetCookie {
	c.expires, c.hasExpires = expiry, true
	return c
}

// SetMaxAge sets the Max-Age attribute, in seconds.
func (c *SetCookie) SetMaxAge(seconds int64) *SetCookie {
	c.maxAge, c.hasMaxAge = seconds, true
	return c
}

// SetPath sets the Path attribute.
func (c *SetCookie) SetPath(path string) *SetCookie { c.path, c.hasPath = path, true; return c }

// SetDomain sets the Domain attribute.
func (c *SetCookie) SetDomain(domain string) *SetCookie {
	c.domain, c.hasDomain = domain, true
	return c
}

// SetSameSite sets the SameSite attribute.
func (c *SetCookie) SetSameSite(s SameSite) *SetCookie { c.sameSite = s; return c }

// SetSecure sets the Secure flag.
func (c *SetCookie) SetSecure(secure bool) *SetCookie { c.secure, c.hasSecure = secure, true; return c }

// SetHTTPOnly sets the HttpOnly flag.
func (c *SetCookie) SetHTTPOnly(httpOnly bool) *SetCookie { c.httpOnly = httpOnly; return c }

// String serializes the builder into a Set-Cookie header value. If name or
// value is unset or empty, the result is empty, signalling the caller to
// drop the header. Emits the canonical "name=value" form. When both
// Max-Age and Expires are set, both are emitted, Expires before Max-Age,
// per the fixed attribute order below.
func (c *SetCookie) String() string {
	if !c.hasName || c.name == "" || !c.hasValue || c.value == "" {
		return ""
	}

	var parts []string
	parts = append(parts, c.name+"="+c.value)

	if c.hasExpires && c.expires != "" {
		parts = append(parts, "Expires="+c.expires)
	}
	if c.hasPath && c.path != "" {
		parts = append(parts, "Path="+c.path)
	}
	if c.hasDomain && c.domain != "" {
		parts = append(parts, "Domain="+c.domain)
	}
	if c.hasMaxAge {
		parts = append(parts, "Max-Age="+strconv.FormatInt(c.maxAge, 10))
	}
	if c.sameSite != SameSiteUnset {
		parts = append(parts, "SameSite="+c.sameSite.String())
	}
	if c.sameSite == SameSiteNone || (c.hasSecure && c.secure) {
		parts = append(parts, "Secure")
	}
	if c.httpOnly {
		parts = append(parts, "HttpOnly")
	}

	return strings.Join(parts, "; ")
}
