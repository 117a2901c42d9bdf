package message

import (
	"context"
	"strconv"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
)

// Request is relay's request value object.
type Request struct {
	Method     string
	URL        rurl.URL
	Header     hdr.Header
	Body       Body
	Extensions map[string]any

	ctx context.Context
}

// NewRequest builds a Request and normalizes it to satisfy relay's
// invariants: Host equals the URL authority, and exactly one of
// Content-Length/Transfer-Encoding is present iff the body is non-empty.
func NewRequest(method string, url rurl.URL, body Body) (*Request, error) {
	if !isValidToken(method) {
		return nil, relayerr.Newf(relayerr.CodeInvalidURL, "method %q is not a valid token", method)
	}
	if body == nil {
		body = Empty
	}
	req := &Request{
		Method:     method,
		URL:        url,
		Header:     hdr.New(),
		Body:       body,
		Extensions: map[string]any{},
		ctx:        context.Background(),
	}
	req.applyFramingHeaders()
	req.Header.Set("Host", url.Authority())
	req.applyDefaultHeaders()
	return req, nil
}

// applyDefaultHeaders fills in headers net/http.Transport.roundTrip would
// otherwise add, since transport/conn.go writes the request straight to the
// raw net.Conn and bypasses that logic entirely. Accept-Encoding is
// "identity" rather than a compressed coding: the transport never
// transparently decompresses a response body.
func (r *Request) applyDefaultHeaders() {
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "*/*")
	}
	if r.Header.Get("Accept-Encoding") == "" {
		r.Header.Set("Accept-Encoding", "identity")
	}
	if r.Header.Get("Connection") == "" {
		r.Header.Set("Connection", "keep-alive")
	}
}

func (r *Request) applyFramingHeaders() {
	r.Header.Del("Content-Length")
	r.Header.Del("Transfer-Encoding")
	if r.Body == nil || r.Body == Empty {
		return
	}
	if n, ok := r.Body.KnownLength(); ok {
		if n > 0 {
			r.Header.Set("Content-Length", strconv.FormatInt(n, 10))
		}
		return
	}
	r.Header.Set("Transfer-Encoding", "chunked")
}

// WithContext returns a shallow copy of r with ctx attached, mirroring the
// net/http.Request.WithContext convention.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// Context returns the request's context.Context, defaulting to Background.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Clone returns a deep-enough copy of r suitable for mutation by
// middleware (redirect target, auth retry): headers are cloned, the body
// is NOT — callers must call Reopen first if they need a fresh body.
func (r *Request) Clone() *Request {
	r2 := *r
	r2.Header = r.Header.Clone()
	ext := make(map[string]any, len(r.Extensions))
	for k, v := range r.Extensions {
		ext[k] = v
	}
	r2.Extensions = ext
	return &r2
}

func isValidToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c <= ' ' || c > '~' {
			return false
		}
		switch c {
		case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}':
			return false
		}
	}
	return true
}
