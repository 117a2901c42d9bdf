package relay

import (
	"context"
	"crypto/tls"
	"sync"

	"golang.org/x/time/rate"

	"github.com/relayhttp/relay/auth"
	"github.com/relayhttp/relay/cookiejar"
	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/internal/logging"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/middleware"
	"github.com/relayhttp/relay/netenv"
	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
	"github.com/relayhttp/relay/transport"
)

// Client is relay's façade: it holds per-client
// defaults, merges per-call overrides, selects a transport per request
// URL, and drives the middleware pipeline to completion.
type Client struct {
	baseURL        rurl.URL
	defaultHeaders hdr.Header
	timeout        message.Timeout
	poolLimits     message.PoolLimits
	tlsConfig      *tls.Config
	trustEnv       bool
	maxRedirects   int
	auth           message.AuthProvider
	log            logging.Logger
	limiter        *rate.Limiter

	directOverride transport.Transport
	pendingProxies []proxyRegistration

	jar    *cookiejar.Jar
	table  *transportTable
	doer   middleware.Doer
	pool   *transport.Pool
	closed sync.Once
}

// New builds a Client with opts applied over the documented
// defaults.
func New(opts ...Option) *Client {
	c := &Client{
		defaultHeaders: hdr.New(),
		timeout:        message.DefaultTimeout(),
		poolLimits:     message.DefaultPoolLimits(),
		trustEnv:       true,
		maxRedirects:   message.DefaultRequestContext().MaxRedirects,
		jar:            cookiejar.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	direct := c.directOverride
	if direct == nil {
		c.pool = transport.NewPool(c.poolLimits, c.tlsConfig, c.log)
		direct = c.pool
	}

	c.table = newTransportTable(direct)
	explicit := map[string]bool{}
	for _, reg := range c.pendingProxies {
		explicit[reg.selector] = true
		c.table.setProxy(reg.selector, &transport.ProxyTransport{ProxyURL: reg.url, Mode: reg.mode, TLSConfig: c.tlsConfig})
	}
	if c.trustEnv {
		c.applyEnvProxies(explicit)
	}

	base := middleware.DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		return c.table.selectFor(req.URL).Send(ctx, req, timeout)
	})
	c.doer = middleware.Chain(base, middleware.AuthMiddleware(), middleware.RedirectMiddleware(c.jar))

	return c
}

// applyEnvProxies registers HTTP_PROXY/HTTPS_PROXY/ALL_PROXY as scheme-keyed
// proxy transports, the trust_env fallback beneath any proxy
// explicitly registered via WithProxy for the same selector.
func (c *Client) applyEnvProxies(explicit map[string]bool) {
	envCfg := netenv.ProxiesFromEnvironment()
	for _, scheme := range []string{"http", "https", "all"} {
		raw, ok := envCfg.ByKey[scheme]
		if !ok || explicit[scheme] {
			continue
		}
		proxyURL, err := rurl.Parse(raw)
		if err != nil {
			continue
		}
		c.table.setProxy(scheme, &transport.ProxyTransport{ProxyURL: proxyURL, Mode: transport.ProxyDefault, TLSConfig: c.tlsConfig})
	}
}

// CallOptions overrides client defaults for a single Do call.
type CallOptions struct {
	Headers        hdr.Header
	Auth           message.AuthProvider
	AllowRedirects *bool
	Timeout        *message.Timeout
	Extensions     map[string]any
}

// Do resolves req against the client's defaults and drives it through the
// middleware pipeline to completion.
func (c *Client) Do(ctx context.Context, req *message.Request, opts *CallOptions) (*message.Response, error) {
	if !c.baseURL.IsZero() && req.URL.Scheme() == "" && req.URL.Authority() == "" {
		u, err := c.baseURL.Join(req.URL.String())
		if err != nil {
			return nil, relayerr.Wrap(relayerr.CodeInvalidURL, err, "resolving request URL against base URL")
		}
		req.URL = u
		req.Header.Set("Host", u.Authority())
	}
	req.Header = hdr.Merge(c.defaultHeaders, req.Header)

	timeout := c.timeout
	allowRedirects := req.Method != "HEAD"
	var explicitAuth message.AuthProvider
	if opts != nil {
		if opts.Headers != nil {
			req.Header = hdr.Merge(req.Header, opts.Headers)
		}
		if opts.Timeout != nil {
			timeout = *opts.Timeout
		}
		if opts.AllowRedirects != nil {
			allowRedirects = *opts.AllowRedirects
		}
		explicitAuth = opts.Auth
		for k, v := range opts.Extensions {
			req.Extensions[k] = v
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, relayerr.Wrap(relayerr.CodePoolTimeout, err, "waiting for rate limiter")
		}
	}

	c.jar.ApplyTo(req)

	rc := message.RequestContext{
		AllowRedirects: allowRedirects,
		TrustEnv:       c.trustEnv,
		MaxRedirects:   c.maxRedirects,
		Auth:           c.resolveAuth(explicitAuth, req.URL),
	}

	return c.doer.Do(ctx, req, rc, timeout)
}

// resolveAuth implements the auth selection order: the explicit per-call
// provider, then the client default, then URL userinfo, then .netrc when
// trust_env is set, else passthrough (nil).
func (c *Client) resolveAuth(explicit message.AuthProvider, u rurl.URL) message.AuthProvider {
	if explicit != nil {
		return explicit
	}
	if c.auth != nil {
		return c.auth
	}
	if user, pass, hasPass := u.Userinfo(); user != "" {
		if hasPass {
			return auth.NewBasic(user, pass)
		}
		return auth.NewBasic(user, "")
	}
	if c.trustEnv {
		if entry, ok := netenv.LookupNetrc(u.Authority()); ok {
			return auth.NewBasic(entry.Login, entry.Password)
		}
	}
	return nil
}

// Get builds and sends a GET request for rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (*message.Response, error) {
	return c.send(ctx, "GET", rawURL, nil, nil)
}

// Post builds and sends a POST request for rawURL with body.
func (c *Client) Post(ctx context.Context, rawURL string, body message.Body) (*message.Response, error) {
	return c.send(ctx, "POST", rawURL, body, nil)
}

// Stream is Do for callers that intend to consume the body lazily via
// Response.Stream rather than Response.Read, the Client.stream()
// enrichment. Behaviorally identical to Do: the choice
// between buffered and lazy consumption is made by the caller against the
// returned Response, not by this method.
func (c *Client) Stream(ctx context.Context, req *message.Request, opts *CallOptions) (*message.Response, error) {
	return c.Do(ctx, req, opts)
}

func (c *Client) send(ctx context.Context, method, rawURL string, body message.Body, opts *CallOptions) (*message.Response, error) {
	u, err := c.resolveURL(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := message.NewRequest(method, u, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req, opts)
}

// resolveURL resolves rawURL against baseURL (if set) and upgrades it to
// https when trustEnv is set and the host is on the HSTS preload seed,
// before the request is ever built.
func (c *Client) resolveURL(rawURL string) (rurl.URL, error) {
	var u rurl.URL
	var err error
	if c.baseURL.IsZero() {
		u, err = rurl.Parse(rawURL)
	} else {
		u, err = c.baseURL.Join(rawURL)
	}
	if err != nil {
		return rurl.URL{}, err
	}
	if c.trustEnv && u.Scheme() == "http" && netenv.IsHSTSPreloaded(u.Host()) {
		u = u.CopyWith(rurl.WithScheme("https"))
	}
	return u, nil
}

// CookieJar returns the client's shared cookie jar.
func (c *Client) CookieJar() *cookiejar.Jar { return c.jar }

// Close tears down the connection pool and every registered proxy
// transport, idempotently.
func (c *Client) Close() error {
	var err error
	c.closed.Do(func() {
		err = c.table.closeAll()
	})
	return err
}
