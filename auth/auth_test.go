package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
)

func newReq(t *testing.T, method, rawURL string) *message.Request {
	t.Helper()
	u, err := rurl.Parse(rawURL)
	require.NoError(t, err)
	req, err := message.NewRequest(method, u, nil)
	require.NoError(t, err)
	return req
}

func TestBasicAddsAuthorizationHeader(t *testing.T) {
	b := NewBasic("tomchristie", "password123")
	req := newReq(t, "GET", "http://example.com/")
	require.NoError(t, b.Apply(req))
	assert.Equal(t, "Basic dG9tY2hyaXN0aWU6cGFzc3dvcmQxMjM=", req.Header.Get("Authorization"))
}

func TestBasicNeverRetries(t *testing.T) {
	b := NewBasic("u", "p")
	req := newReq(t, "GET", "http://example.com/")
	resp := message.NewResponse(401, "Unauthorized", "HTTP/1.1", hdr.New(), nil, nil)
	_, ok, err := b.HandleChallenge(req, resp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCustomInvokesFunction(t *testing.T) {
	c := NewCustom(func(r *message.Request) error {
		r.Header.Set("X-Signed", "yes")
		return nil
	})
	req := newReq(t, "GET", "http://example.com/")
	require.NoError(t, c.Apply(req))
	assert.Equal(t, "yes", req.Header.Get("X-Signed"))
}

func TestDigestIgnoresNonChallengeResponse(t *testing.T) {
	d := NewDigest("tomchristie", "password123")
	req := newReq(t, "GET", "http://example.com/")
	resp := message.NewResponse(200, "OK", "HTTP/1.1", hdr.New(), nil, nil)
	retry, ok, err := d.HandleChallenge(req, resp)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, retry)
}

func TestDigestBuildsAuthorizationHeader(t *testing.T) {
	d := NewDigest("tomchristie", "password123")
	req := newReq(t, "GET", "http://example.com/")

	h := hdr.New()
	h.Set("WWW-Authenticate", `Digest realm="httpx@example.org", nonce="`+strings.Repeat("a", 64)+`", qop="auth", opaque="`+strings.Repeat("b", 64)+`", algorithm=SHA-256`)
	resp := message.NewResponse(401, "Unauthorized", "HTTP/1.1", h, nil, nil)

	retry, ok, err := d.HandleChallenge(req, resp)
	require.NoError(t, err)
	require.True(t, ok)

	auth := retry.Header.Get("Authorization")
	assert.Contains(t, auth, `username="tomchristie"`)
	assert.Contains(t, auth, `realm="httpx@example.org"`)
	assert.Contains(t, auth, "qop=auth")
	assert.Contains(t, auth, "nc=00000001")

	cnonceIdx := strings.Index(auth, `cnonce="`)
	require.GreaterOrEqual(t, cnonceIdx, 0)
	cnonce := auth[cnonceIdx+len(`cnonce="`):]
	cnonce = cnonce[:strings.IndexByte(cnonce, '"')]
	assert.Len(t, cnonce, 16)

	respIdx := strings.Index(auth, `response="`)
	require.GreaterOrEqual(t, respIdx, 0)
	respDigest := auth[respIdx+len(`response="`):]
	respDigest = respDigest[:strings.IndexByte(respDigest, '"')]
	assert.Len(t, respDigest, 64)
}

func TestDigestNonceCounterIncrementsPerNonce(t *testing.T) {
	d := NewDigest("u", "p")
	nonce := strings.Repeat("c", 32)
	first := d.nextNonceCount(nonce)
	second := d.nextNonceCount(nonce)
	assert.Equal(t, uint32(1), first)
	assert.Equal(t, uint32(2), second)
}

func TestDigestAuthIntNotImplemented(t *testing.T) {
	_, err := resolveQop("auth-int")
	require.Error(t, err)
	code, ok := relayerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, "not_implemented", string(code))
}

func TestDigestRejectsNonReplayableBodyUpfront(t *testing.T) {
	d := NewDigest("u", "p")
	req := newReq(t, "POST", "http://example.com/")
	req.Body = message.NewStreamBody(nopReadCloser{}, 3)
	err := d.Apply(req)
	require.Error(t, err)
}

type nopReadCloser struct{}

func (nopReadCloser) Read(p []byte) (int, error) { return 0, nil }
func (nopReadCloser) Close() error               { return nil }
