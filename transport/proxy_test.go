package transport

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
)

func TestProxyTransportForwardModeSendsAbsoluteURI(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		w.Header().Set("X-From", "proxy")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	proxyURL, err := rurl.Parse("http://" + srv.Listener.Addr().String())
	require.NoError(t, err)

	target, err := rurl.Parse("http://example.com/widgets")
	require.NoError(t, err)
	req, err := message.NewRequest("GET", target, nil)
	require.NoError(t, err)

	p := &ProxyTransport{ProxyURL: proxyURL, Mode: ProxyForwardOnly}
	resp, err := p.Send(context.Background(), req, message.DefaultTimeout())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "proxy", resp.Header.Get("X-From"))
	assert.Equal(t, "http://example.com/widgets", gotURL)
}

func TestProxyTransportForwardModeSendsProxyAuthorization(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Proxy-Authorization")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	proxyURL, err := rurl.Parse("http://user:pass@" + srv.Listener.Addr().String())
	require.NoError(t, err)
	target, err := rurl.Parse("http://example.com/")
	require.NoError(t, err)
	req, err := message.NewRequest("GET", target, nil)
	require.NoError(t, err)

	p := &ProxyTransport{ProxyURL: proxyURL, Mode: ProxyForwardOnly}
	resp, err := p.Send(context.Background(), req, message.DefaultTimeout())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, gotAuth)
	assert.Regexp(t, `^Basic `, gotAuth)
}

// fakeConnectProxy accepts one connection, answers CONNECT with 200, then
// serves one plain HTTP response over the tunneled connection.
func fakeConnectProxy(t *testing.T, statusLine string) (addr string, done chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done = make(chan error, 1)
	go func() {
		defer ln.Close()
		c, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer c.Close()

		br := bufio.NewReader(c)
		connectReq, err := http.ReadRequest(br)
		if err != nil {
			done <- err
			return
		}
		if connectReq.Method != http.MethodConnect {
			done <- nil
			return
		}
		if _, err := c.Write([]byte(statusLine)); err != nil {
			done <- err
			return
		}
		if statusLine[9] != '2' {
			done <- nil
			return
		}

		tunneled, err := http.ReadRequest(br)
		if err != nil {
			done <- err
			return
		}
		_ = tunneled.Body.Close()

		resp := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
		_, err = c.Write([]byte(resp))
		done <- err
	}()
	return ln.Addr().String(), done
}

func TestProxyTransportTunnelModeConnectsThenSendsRequest(t *testing.T) {
	addr, done := fakeConnectProxy(t, "HTTP/1.1 200 Connection Established\r\nContent-Length: 0\r\n\r\n")

	proxyURL, err := rurl.Parse("http://" + addr)
	require.NoError(t, err)
	target, err := rurl.Parse("http://example.com/widgets")
	require.NoError(t, err)
	req, err := message.NewRequest("GET", target, nil)
	require.NoError(t, err)

	p := &ProxyTransport{ProxyURL: proxyURL, Mode: ProxyTunnelOnly}
	resp, err := p.Send(context.Background(), req, message.DefaultTimeout())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, err := resp.Read()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	require.NoError(t, <-done)
}

func TestProxyTransportTunnelModeRejectsNon2xxConnect(t *testing.T) {
	addr, _ := fakeConnectProxy(t, "HTTP/1.1 407 Proxy Authentication Required\r\n\r\n")

	proxyURL, err := rurl.Parse("http://" + addr)
	require.NoError(t, err)
	target, err := rurl.Parse("http://example.com/")
	require.NoError(t, err)
	req, err := message.NewRequest("GET", target, nil)
	require.NoError(t, err)

	p := &ProxyTransport{ProxyURL: proxyURL, Mode: ProxyTunnelOnly}
	_, err = p.Send(context.Background(), req, message.DefaultTimeout())
	require.Error(t, err)
	code, ok := relayerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, relayerr.CodeProxyError, code)
}

func TestEffectiveModeDefaultsByScheme(t *testing.T) {
	assert.Equal(t, ProxyTunnelOnly, effectiveMode(ProxyDefault, "https"))
	assert.Equal(t, ProxyForwardOnly, effectiveMode(ProxyDefault, "http"))
	assert.Equal(t, ProxyForwardOnly, effectiveMode(ProxyForwardOnly, "https"))
}
