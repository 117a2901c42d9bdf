package cookiejar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/rurl"
)

func mustReq(t *testing.T, method, url string) *message.Request {
	t.Helper()
	u, err := rurl.Parse(url)
	require.NoError(t, err)
	req, err := message.NewRequest(method, u, nil)
	require.NoError(t, err)
	return req
}

func respWithSetCookie(t *testing.T, req *message.Request, setCookie ...string) *message.Response {
	t.Helper()
	h := hdr.New()
	for _, v := range setCookie {
		h.Add("Set-Cookie", v)
	}
	resp := message.NewResponse(200, "OK", "HTTP/1.1", h, nil, nil)
	resp.Request = req
	return resp
}

func TestSetFromResponseThenApplyTo(t *testing.T) {
	j := New()
	req := mustReq(t, "GET", "http://example.com/a")
	resp := respWithSetCookie(t, req, "session=abc123; Path=/")
	j.SetFromResponse(resp)

	next := mustReq(t, "GET", "http://example.com/a/b")
	j.ApplyTo(next)
	assert.Equal(t, "session=abc123", next.Header.Get("Cookie"))
}

func TestApplyToRespectsPathScope(t *testing.T) {
	j := New()
	req := mustReq(t, "GET", "http://example.com/admin")
	resp := respWithSetCookie(t, req, "admin=1; Path=/admin")
	j.SetFromResponse(resp)

	outOfScope := mustReq(t, "GET", "http://example.com/other")
	j.ApplyTo(outOfScope)
	assert.Empty(t, outOfScope.Header.Get("Cookie"))

	inScope := mustReq(t, "GET", "http://example.com/admin/panel")
	j.ApplyTo(inScope)
	assert.Equal(t, "admin=1", inScope.Header.Get("Cookie"))
}

func TestSecureCookieWithheldFromPlainHTTP(t *testing.T) {
	j := New()
	req := mustReq(t, "GET", "https://example.com/")
	resp := respWithSetCookie(t, req, "sid=xyz; Secure; Path=/")
	j.SetFromResponse(resp)

	plain := mustReq(t, "GET", "http://example.com/")
	j.ApplyTo(plain)
	assert.Empty(t, plain.Header.Get("Cookie"))

	secure := mustReq(t, "GET", "https://example.com/")
	j.ApplyTo(secure)
	assert.Equal(t, "sid=xyz", secure.Header.Get("Cookie"))
}

func TestGetReturnsCookieConflictWhenAmbiguous(t *testing.T) {
	j := New()
	reqA := mustReq(t, "GET", "http://a.example.com/")
	j.SetFromResponse(respWithSetCookie(t, reqA, "pref=dark; Domain=a.example.com; Path=/"))
	reqB := mustReq(t, "GET", "http://b.example.com/")
	j.SetFromResponse(respWithSetCookie(t, reqB, "pref=light; Domain=b.example.com; Path=/"))

	_, err := j.Get("pref")
	require.Error(t, err)
}

func TestGetReturnsSingleValueWhenConsistent(t *testing.T) {
	j := New()
	req := mustReq(t, "GET", "http://example.com/")
	j.SetFromResponse(respWithSetCookie(t, req, "pref=dark; Path=/"))

	v, err := j.Get("pref")
	require.NoError(t, err)
	assert.Equal(t, "dark", v)
}

func TestSetFromResponseRejectsCookieScopedToPublicSuffix(t *testing.T) {
	j := New()
	req := mustReq(t, "GET", "http://www.example.co.uk/")
	resp := respWithSetCookie(t, req, "tracker=1; Domain=co.uk; Path=/")
	j.SetFromResponse(resp)

	next := mustReq(t, "GET", "http://other.co.uk/")
	j.ApplyTo(next)
	assert.Empty(t, next.Header.Get("Cookie"))
}

func TestMaxAgeNegativeDeletesCookie(t *testing.T) {
	j := New()
	req := mustReq(t, "GET", "http://example.com/")
	j.SetFromResponse(respWithSetCookie(t, req, "session=abc; Path=/"))
	j.SetFromResponse(respWithSetCookie(t, req, "session=abc; Path=/; Max-Age=-1"))

	next := mustReq(t, "GET", "http://example.com/")
	j.ApplyTo(next)
	assert.Empty(t, next.Header.Get("Cookie"))
}
