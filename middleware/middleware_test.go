package middleware

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
)

func mustURL(t *testing.T, s string) rurl.URL {
	t.Helper()
	u, err := rurl.Parse(s)
	require.NoError(t, err)
	return u
}

func mustReq(t *testing.T, method, url string) *message.Request {
	t.Helper()
	req, err := message.NewRequest(method, mustURL(t, url), nil)
	require.NoError(t, err)
	return req
}

func newResp(status int, header hdr.Header) *message.Response {
	if header == nil {
		header = hdr.New()
	}
	return message.NewResponse(status, "", "HTTP/1.1", header, nil, nil)
}

func TestChainOrdersOuterToInner(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next Doer) Doer {
			return DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
				order = append(order, name)
				return next.Do(ctx, req, rc, timeout)
			})
		}
	}
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		order = append(order, "base")
		return newResp(200, nil), nil
	})

	d := Chain(base, trace("outer"), trace("inner"))
	_, err := d.Do(context.Background(), mustReq(t, "GET", "http://example.com/"), message.RequestContext{}, message.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "base"}, order)
}

func TestRedirectFollows302AndRecordsHistory(t *testing.T) {
	calls := 0
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		calls++
		if calls == 1 {
			h := hdr.New()
			h.Set("Location", "/next")
			return newResp(302, h), nil
		}
		assert.Equal(t, "/next", req.URL.Path())
		return newResp(200, nil), nil
	})

	d := RedirectMiddleware(nil)(base)
	rc := message.RequestContext{AllowRedirects: true, MaxRedirects: 20}
	resp, err := d.Do(context.Background(), mustReq(t, "GET", "http://example.com/"), rc, message.Timeout{})
	require.NoError(t, err)
	require.Len(t, resp.History, 1)
	assert.Equal(t, 302, resp.History[0].StatusCode)
	assert.Equal(t, 200, resp.StatusCode)
}

func Test303AlwaysDropsToGET(t *testing.T) {
	calls := 0
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		calls++
		if calls == 1 {
			h := hdr.New()
			h.Set("Location", "/next")
			return newResp(303, h), nil
		}
		assert.Equal(t, "GET", req.Method)
		return newResp(200, nil), nil
	})

	d := RedirectMiddleware(nil)(base)
	rc := message.RequestContext{AllowRedirects: true, MaxRedirects: 20}
	_, err := d.Do(context.Background(), mustReq(t, "POST", "http://example.com/"), rc, message.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func Test302RewritesPOSTToGETAndDropsBody(t *testing.T) {
	calls := 0
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		calls++
		if calls == 1 {
			assert.Equal(t, "POST", req.Method)
			h := hdr.New()
			h.Set("Location", "/next")
			return newResp(302, h), nil
		}
		assert.Equal(t, "GET", req.Method)
		assert.Equal(t, message.Empty, req.Body)
		return newResp(200, nil), nil
	})

	d := RedirectMiddleware(nil)(base)
	rc := message.RequestContext{AllowRedirects: true, MaxRedirects: 20}
	req := mustReq(t, "POST", "http://example.com/")
	req.Body = message.NewBytesBody([]byte("payload"))
	_, err := d.Do(context.Background(), req, rc, message.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTooManyRedirectsFails(t *testing.T) {
	calls := 0
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		calls++
		h := hdr.New()
		h.Set("Location", fmt.Sprintf("/hop/%d", calls))
		return newResp(302, h), nil
	})

	d := RedirectMiddleware(nil)(base)
	rc := message.RequestContext{AllowRedirects: true, MaxRedirects: 2}
	_, err := d.Do(context.Background(), mustReq(t, "GET", "http://example.com/a"), rc, message.Timeout{})
	require.Error(t, err)
	code, ok := relayerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, relayerr.CodeTooManyRedirects, code)
}

func TestCrossOriginRedirectStripsAuthorization(t *testing.T) {
	calls := 0
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		calls++
		if calls == 1 {
			assert.Equal(t, "secret", req.Header.Get("Authorization"))
			h := hdr.New()
			h.Set("Location", "http://other.example.com/next")
			return newResp(307, h), nil
		}
		assert.Empty(t, req.Header.Get("Authorization"))
		return newResp(200, nil), nil
	})

	d := RedirectMiddleware(nil)(base)
	rc := message.RequestContext{AllowRedirects: true, MaxRedirects: 20}
	req := mustReq(t, "GET", "http://example.com/")
	req.Header.Set("Authorization", "secret")
	_, err := d.Do(context.Background(), req, rc, message.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRedirectSetsRefererFromPreviousURL(t *testing.T) {
	calls := 0
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		calls++
		if calls == 1 {
			assert.Empty(t, req.Header.Get("Referer"))
			h := hdr.New()
			h.Set("Location", "/next")
			return newResp(302, h), nil
		}
		assert.Equal(t, "http://example.com/", req.Header.Get("Referer"))
		return newResp(200, nil), nil
	})

	d := RedirectMiddleware(nil)(base)
	rc := message.RequestContext{AllowRedirects: true, MaxRedirects: 20}
	_, err := d.Do(context.Background(), mustReq(t, "GET", "http://example.com/"), rc, message.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRedirectDropsRefererOnHTTPSToHTTPDowngrade(t *testing.T) {
	calls := 0
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		calls++
		if calls == 1 {
			h := hdr.New()
			h.Set("Location", "http://example.com/next")
			return newResp(302, h), nil
		}
		assert.Empty(t, req.Header.Get("Referer"))
		return newResp(200, nil), nil
	})

	d := RedirectMiddleware(nil)(base)
	rc := message.RequestContext{AllowRedirects: true, MaxRedirects: 20}
	_, err := d.Do(context.Background(), mustReq(t, "GET", "https://example.com/"), rc, message.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

type fakeAuth struct {
	applyErr      error
	challengeOnce bool
	called        bool
}

func (f *fakeAuth) Name() string { return "fake" }
func (f *fakeAuth) Apply(req *message.Request) error {
	return f.applyErr
}
func (f *fakeAuth) HandleChallenge(req *message.Request, resp *message.Response) (*message.Request, bool, error) {
	if f.called || !f.challengeOnce {
		return nil, false, nil
	}
	f.called = true
	retry := req.Clone()
	retry.Header.Set("Authorization", "retried")
	return retry, true, nil
}

func TestAuthMiddlewareRetriesOnChallenge(t *testing.T) {
	calls := 0
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		calls++
		if calls == 1 {
			return newResp(401, nil), nil
		}
		assert.Equal(t, "retried", req.Header.Get("Authorization"))
		return newResp(200, nil), nil
	})

	d := AuthMiddleware()(base)
	rc := message.RequestContext{Auth: &fakeAuth{challengeOnce: true}}
	resp, err := d.Do(context.Background(), mustReq(t, "GET", "http://example.com/"), rc, message.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 2, calls)
}

func TestAuthMiddlewarePassthroughWithoutProvider(t *testing.T) {
	base := DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
		return newResp(200, nil), nil
	})
	d := AuthMiddleware()(base)
	resp, err := d.Do(context.Background(), mustReq(t, "GET", "http://example.com/"), message.RequestContext{}, message.Timeout{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
