// Package rurl provides the URL value type used throughout relay.
//
// Full URI grammar parsing/escaping is an explicit external collaborator:
// rurl wraps net/url for that grammar and adds only the invariants relay
// owns — canonical (lowercased) host, default-port stripping, and the
// Join/CopyWith value-type operations a pooled client needs to key origins
// and follow redirects.
package rurl

import (
	"fmt"
	"net/url"
	"strings"
)

// URL is an immutable value type. Use Parse to build one; mutate via
// CopyWith, never in place.
type URL struct {
	raw *url.URL
}

var defaultPort = map[string]string{
	"http":  "80",
	"https": "443",
}

// Parse parses s and canonicalizes the result: host is lowercased, and the
// port is normalized to empty when it equals the scheme's default.
func Parse(s string) (URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return URL{}, fmt.Errorf("rurl: invalid url %q: %w", s, err)
	}
	if u.Scheme == "" || u.Host == "" {
		// Relative references are valid inputs to Join but not to Parse.
		if u.Scheme == "" && u.Host == "" && u.Opaque == "" {
			return URL{raw: canonicalize(u)}, nil
		}
	}
	return URL{raw: canonicalize(u)}, nil
}

func canonicalize(u *url.URL) *url.URL {
	c := *u
	c.Host = strings.ToLower(c.Host)
	scheme := strings.ToLower(c.Scheme)
	c.Scheme = scheme
	if host, port, ok := splitHostPort(c.Host); ok {
		if def, known := defaultPort[scheme]; known && port == def {
			c.Host = host
		}
	}
	return &c
}

func splitHostPort(hostport string) (host, port string, ok bool) {
	i := strings.LastIndexByte(hostport, ':')
	if i < 0 {
		return hostport, "", false
	}
	// avoid splitting IPv6 zone/bracket forms incorrectly; bracketed hosts
	// always carry their own closing bracket before the port colon.
	if strings.HasPrefix(hostport, "[") {
		j := strings.IndexByte(hostport, ']')
		if j < 0 || j+1 != i {
			return hostport, "", false
		}
	}
	return hostport[:i], hostport[i+1:], true
}

// IsZero reports whether u was never populated via Parse/Join.
func (u URL) IsZero() bool { return u.raw == nil }

// Scheme returns the lowercased scheme ("http", "https", ...).
func (u URL) Scheme() string { return u.raw.Scheme }

// Host returns the canonical host (without port).
func (u URL) Host() string {
	if host, _, ok := splitHostPort(u.raw.Host); ok {
		return host
	}
	return u.raw.Host
}

// Port returns the explicit port, or "" if the scheme default applies.
func (u URL) Port() string {
	_, port, ok := splitHostPort(u.raw.Host)
	if !ok {
		return ""
	}
	return port
}

// EffectivePort returns Port(), falling back to the scheme's default.
func (u URL) EffectivePort() string {
	if p := u.Port(); p != "" {
		return p
	}
	return defaultPort[u.Scheme()]
}

// Authority returns "host[:port]" exactly as it should appear in the Host
// header / origin key (port omitted when it is the scheme default).
func (u URL) Authority() string { return u.raw.Host }

// Path returns the decoded path.
func (u URL) Path() string { return u.raw.Path }

// FullPath returns path + "?query", as sent on the request line.
func (u URL) FullPath() string {
	if u.raw.RawQuery == "" {
		if u.raw.EscapedPath() == "" {
			return "/"
		}
		return u.raw.EscapedPath()
	}
	return u.raw.EscapedPath() + "?" + u.raw.RawQuery
}

// Query returns the parsed query multimap. Order among values for a given
// key is preserved; order across distinct keys is not (net/url.Values is a
// map), matching the "ordered multimap" contract only per-key.
func (u URL) Query() url.Values { return u.raw.Query() }

// Userinfo returns (username, password, hasPassword).
func (u URL) Userinfo() (string, string, bool) {
	if u.raw.User == nil {
		return "", "", false
	}
	pw, ok := u.raw.User.Password()
	return u.raw.User.Username(), pw, ok
}

// Fragment returns the decoded fragment.
func (u URL) Fragment() string { return u.raw.Fragment }

// Origin returns the (scheme, host, effective port) triple that keys
// connection pooling and cross-authority checks.
func (u URL) Origin() (scheme, host, port string) {
	return u.Scheme(), u.Host(), u.EffectivePort()
}

// SameOrigin reports whether u and other share scheme, host and effective port.
func (u URL) SameOrigin(other URL) bool {
	as, ah, ap := u.Origin()
	bs, bh, bp := other.Origin()
	return as == bs && ah == bh && ap == bp
}

// String reassembles the URL.
func (u URL) String() string {
	if u.raw == nil {
		return ""
	}
	return u.raw.String()
}

// Join resolves ref (which may be relative) against u, per RFC 3986 §5,
// delegating to net/url and re-canonicalizing the result.
func (u URL) Join(ref string) (URL, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return URL{}, fmt.Errorf("rurl: invalid redirect target %q: %w", ref, err)
	}
	resolved := u.raw.ResolveReference(target)
	return URL{raw: canonicalize(resolved)}, nil
}

// CopyWithOpt mutates a copy of u's underlying value; each option receives
// the clone to modify. Used by CopyWith to avoid exposing *url.URL.
type CopyWithOpt func(*url.URL)

// WithScheme overrides the scheme on a copy.
func WithScheme(scheme string) CopyWithOpt {
	return func(u *url.URL) { u.Scheme = strings.ToLower(scheme) }
}

// WithHost overrides the host (and optional :port) on a copy.
func WithHost(host string) CopyWithOpt {
	return func(u *url.URL) { u.Host = host }
}

// WithPath overrides the path on a copy.
func WithPath(path string) CopyWithOpt {
	return func(u *url.URL) { u.Path = path; u.RawPath = "" }
}

// CopyWith returns a new URL equal to u with the given options applied.
// CopyWith() with no arguments yields a URL equal to u.
func (u URL) CopyWith(opts ...CopyWithOpt) URL {
	clone := *u.raw
	for _, opt := range opts {
		opt(&clone)
	}
	return URL{raw: canonicalize(&clone)}
}
