package relay

import (
	"crypto/tls"

	"golang.org/x/time/rate"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/internal/logging"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/rurl"
	"github.com/relayhttp/relay/transport"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithBaseURL resolves every relative URL passed to Do/Get/Post against base.
func WithBaseURL(base rurl.URL) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithDefaultHeaders sets headers merged (overridable per call) into every request.
func WithDefaultHeaders(h hdr.Header) Option {
	return func(c *Client) { c.defaultHeaders = h.Clone() }
}

// WithTimeout overrides the default per-operation timeout policy.
func WithTimeout(t message.Timeout) Option {
	return func(c *Client) { c.timeout = t }
}

// WithPoolLimits overrides the connection pool's admission-control knobs.
func WithPoolLimits(limits message.PoolLimits) Option {
	return func(c *Client) { c.poolLimits = limits }
}

// WithRateLimit caps outgoing request starts to r per second with the given
// burst, blocking Do until a token is available. Disabled (nil) by default.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithTLSConfig sets the *tls.Config used when dialing https origins.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithLogger attaches a structured logger to the client's pool.
func WithLogger(log logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTrustEnv toggles whether the client consults proxy env vars and
// .netrc for defaults, the trust_env flag.
func WithTrustEnv(trust bool) Option {
	return func(c *Client) { c.trustEnv = trust }
}

// WithMaxRedirects overrides the default redirect hop limit.
func WithMaxRedirects(n int) Option {
	return func(c *Client) { c.maxRedirects = n }
}

// WithAuth sets the client-level default auth provider, used when a call
// does not supply its own, following the client's auth selection order.
func WithAuth(a message.AuthProvider) Option {
	return func(c *Client) { c.auth = a }
}

// WithProxy registers a proxy transport under selector, one of the
// lookup keys ("{scheme}://{host}:{port}", "{scheme}://{host}",
// "all://...", scheme alone, "all").
func WithProxy(selector string, mode transport.ProxyMode, proxyURL rurl.URL) Option {
	return func(c *Client) {
		c.pendingProxies = append(c.pendingProxies, proxyRegistration{selector: selector, mode: mode, url: proxyURL})
	}
}

// WithDirectTransport overrides the default connection pool as the direct
// (non-proxied) transport — used by tests to substitute a
// transport.MockTransport.
func WithDirectTransport(t transport.Transport) Option {
	return func(c *Client) { c.directOverride = t }
}

type proxyRegistration struct {
	selector string
	mode     transport.ProxyMode
	url      rurl.URL
}
