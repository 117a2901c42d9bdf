package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
)

// ProxyMode selects how ProxyTransport reaches the target through the
// configured proxy.
type ProxyMode int

const (
	ProxyDefault ProxyMode = iota
	ProxyForwardOnly
	ProxyTunnelOnly
)

// ProxyTransport forwards requests through an HTTP proxy, either rewriting
// the request line to an absolute URI (forward mode, HTTP targets only) or
// tunneling via CONNECT (tunnel mode, required for HTTPS).
type ProxyTransport struct {
	ProxyURL  rurl.URL
	Mode      ProxyMode
	TLSConfig *tls.Config
}

var _ Transport = (*ProxyTransport)(nil)

func effectiveMode(mode ProxyMode, targetScheme string) ProxyMode {
	if mode != ProxyDefault {
		return mode
	}
	if targetScheme == "https" {
		return ProxyTunnelOnly
	}
	return ProxyForwardOnly
}

func (p *ProxyTransport) Send(ctx context.Context, req *message.Request, timeout message.Timeout) (*message.Response, error) {
	proxyOrigin := Origin{Scheme: p.ProxyURL.Scheme(), Host: p.ProxyURL.Host(), Port: p.ProxyURL.EffectivePort()}
	targetScheme, targetHost, targetPort := req.URL.Origin()

	mode := effectiveMode(p.Mode, targetScheme)

	c, err := dialConn(ctx, proxyOrigin, timeout, p.TLSConfig)
	if err != nil {
		return nil, err
	}

	if mode == ProxyTunnelOnly {
		if err := p.connectTunnel(c, targetHost, targetPort, timeout); err != nil {
			_, _ = c.close()
			return nil, err
		}
		if targetScheme == "https" {
			cfg := p.TLSConfig
			if cfg == nil {
				cfg = &tls.Config{}
			}
			cfg = cfg.Clone()
			if cfg.ServerName == "" {
				cfg.ServerName = targetHost
			}
			tlsConn := tls.Client(c.netConn, cfg)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				_ = c.netConn.Close()
				return nil, relayerr.Wrap(relayerr.CodeNetworkError, err, "tls handshake over proxy tunnel")
			}
			c.netConn = tlsConn
			c.br = bufio.NewReader(tlsConn)
		}
		return p.sendOverConn(c, req, timeout, false)
	}

	// Forward mode: absolute-URI request line sent straight to the proxy.
	if userinfoAuth, ok := p.proxyAuthHeader(); ok {
		req = req.Clone()
		req.Header.Set("Proxy-Authorization", userinfoAuth)
	}
	return p.sendOverConn(c, req, timeout, true)
}

func (p *ProxyTransport) proxyAuthHeader() (string, bool) {
	user, pass, hasPass := p.ProxyURL.Userinfo()
	if user == "" {
		return "", false
	}
	cred := user + ":"
	if hasPass {
		cred = user + ":" + pass
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(cred)), true
}

// connectTunnel issues "CONNECT host:port" to the proxy and requires a 2xx
// response.
func (p *ProxyTransport) connectTunnel(c *conn, targetHost, targetPort string, timeout message.Timeout) error {
	addr := net.JoinHostPort(targetHost, targetPort)
	connectReq, err := http.NewRequest(http.MethodConnect, "//"+addr, nil)
	if err != nil {
		return relayerr.Wrap(relayerr.CodeProxyError, err, "building CONNECT request")
	}
	connectReq.URL.Opaque = addr
	connectReq.Host = addr
	if auth, ok := p.proxyAuthHeader(); ok {
		connectReq.Header.Set("Proxy-Authorization", auth)
	}

	if timeout.Write > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(timeout.Write))
	}
	if err := connectReq.Write(c.netConn); err != nil {
		return classifyIOErr(err, relayerr.CodeWriteTimeout)
	}
	if timeout.Read > 0 {
		_ = c.netConn.SetReadDeadline(time.Now().Add(timeout.Read))
	}
	resp, err := http.ReadResponse(c.br, connectReq)
	if err != nil {
		return classifyIOErr(err, relayerr.CodeReadTimeout)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return relayerr.Newf(relayerr.CodeProxyError, "CONNECT %s: proxy returned %s", addr, resp.Status).WithStatus(resp.StatusCode)
	}
	return nil
}

// sendOverConn writes req over an already-established conn (direct to
// target for tunnel mode, to the proxy itself for forward mode) and wraps
// the result the same way Pool.Send does, without pool-level reuse —
// ProxyTransport opens one connection per call.
func (p *ProxyTransport) sendOverConn(c *conn, req *message.Request, timeout message.Timeout, absoluteForm bool) (*message.Response, error) {
	httpReq, err := toHTTPRequest(req)
	if err != nil {
		_, _ = c.close()
		return nil, err
	}

	if timeout.Write > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(timeout.Write))
	} else {
		_ = c.netConn.SetWriteDeadline(time.Time{})
	}

	var writeErr error
	if absoluteForm {
		writeErr = httpReq.WriteProxy(c.netConn)
	} else {
		writeErr = httpReq.Write(c.netConn)
	}
	if writeErr != nil {
		_, _ = c.close()
		return nil, classifyIOErr(writeErr, relayerr.CodeWriteTimeout)
	}

	if timeout.Read > 0 {
		_ = c.netConn.SetReadDeadline(time.Now().Add(timeout.Read))
	} else {
		_ = c.netConn.SetReadDeadline(time.Time{})
	}
	httpResp, err := http.ReadResponse(c.br, httpReq)
	if err != nil {
		_, _ = c.close()
		return nil, classifyIOErr(err, relayerr.CodeReadTimeout)
	}

	body := message.NewStreamBody(httpResp.Body, httpResp.ContentLength)
	var once closeOnce
	release := func() error {
		return once.do(func() error { _, err := c.close(); return err })
	}
	reason := strings.TrimSpace(strings.TrimPrefix(httpResp.Status, strconv.Itoa(httpResp.StatusCode)))
	resp := message.NewResponse(httpResp.StatusCode, reason, httpResp.Proto, hdr.Header(httpResp.Header), body, release)
	resp.Request = req
	return resp, nil
}

func (p *ProxyTransport) Close() error { return nil }

type closeOnce struct {
	done bool
}

func (o *closeOnce) do(f func() error) error {
	if o.done {
		return nil
	}
	o.done = true
	return f()
}
