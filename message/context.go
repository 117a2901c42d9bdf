package message

import "time"

// Timeout holds the four independent, per-operation timeouts relay tracks.
// A zero value for any field means "disabled" (no deadline).
type Timeout struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
	Pool    time.Duration
}

// DefaultTimeout matches the client's documented default.
func DefaultTimeout() Timeout {
	return Timeout{
		Connect: 5 * time.Second,
		Read:    5 * time.Second,
		Write:   5 * time.Second,
		Pool:    5 * time.Second,
	}
}

// PoolLimits holds the connection pool's admission-control knobs.
type PoolLimits struct {
	SoftLimit       int
	HardLimit       int
	PoolTimeout     time.Duration
	KeepAliveExpiry time.Duration
}

// DefaultPoolLimits matches the client's documented default.
func DefaultPoolLimits() PoolLimits {
	return PoolLimits{
		SoftLimit:       10,
		HardLimit:       100,
		PoolTimeout:     5 * time.Second,
		KeepAliveExpiry: 5 * time.Second,
	}
}

// AuthProvider is the per-call/per-client auth selection contract relay
// exposes. Concrete implementations live in package auth (Basic,
// Custom, Digest); AuthMiddleware drives them without importing that
// package, avoiding a cycle (auth depends on message, not the reverse).
type AuthProvider interface {
	// Name identifies the scheme for logging/diagnostics.
	Name() string

	// Apply attaches this provider's credentials to req before the first
	// attempt (Basic, Custom) or leaves it unmodified pending a challenge
	// (Digest).
	Apply(req *Request) error

	// HandleChallenge inspects resp to an already-sent request and, if the
	// scheme wants to retry with credentials, returns a re-authenticated
	// clone of req and true. Providers that never retry (Basic, Custom)
	// return (nil, false) unconditionally.
	HandleChallenge(req *Request, resp *Response) (retry *Request, ok bool, err error)
}

// RequestContext is the bag of cross-cutting state threaded
// alongside the Go context.Context (which carries deadlines and
// cancellation, per Go convention, rather than being folded into this bag).
type RequestContext struct {
	AllowRedirects bool
	Auth           AuthProvider
	TrustEnv       bool
	MaxRedirects   int
}

// DefaultRequestContext matches the client's documented defaults,
// except AllowRedirects, which the caller must set per the
// "HEAD default allow_redirects=false" boundary behavior.
func DefaultRequestContext() RequestContext {
	return RequestContext{
		AllowRedirects: true,
		TrustEnv:       true,
		MaxRedirects:   20,
	}
}
