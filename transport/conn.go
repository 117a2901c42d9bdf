package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
)

type connState int

const (
	stateIdle connState = iota
	stateActive
	stateClosed
)

// conn is a single pooled connection, exclusively leased to at most one
// in-flight request at a time, matching the connection's state machine:
// IDLE -> ACTIVE -> IDLE | CLOSED.
type conn struct {
	origin  Origin
	netConn net.Conn
	br      *bufio.Reader

	mu      sync.Mutex
	state   connState
	lastUse time.Time
	proto   string
}

func dialConn(ctx context.Context, origin Origin, timeout message.Timeout, tlsConfig *tls.Config) (*conn, error) {
	dialCtx := ctx
	if timeout.Connect > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout.Connect)
		defer cancel()
	}

	dialer := &net.Dialer{}
	var nc net.Conn
	var err error
	if origin.Scheme == "https" {
		cfg := tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		cfg = cfg.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = origin.Host
		}
		nc, err = (&tls.Dialer{NetDialer: dialer, Config: cfg}).DialContext(dialCtx, "tcp", origin.Addr())
	} else {
		nc, err = dialer.DialContext(dialCtx, "tcp", origin.Addr())
	}
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, relayerr.Wrap(relayerr.CodeConnectTimeout, err, "connecting to "+origin.String())
		}
		return nil, relayerr.Wrap(relayerr.CodeNetworkError, err, "connecting to "+origin.String())
	}

	proto := "HTTP/1.1"
	if tc, ok := nc.(*tls.Conn); ok {
		if tc.ConnectionState().NegotiatedProtocol == "h2" {
			proto = "HTTP/2.0"
		}
	}

	return &conn{
		origin:  origin,
		netConn: nc,
		br:      bufio.NewReader(nc),
		state:   stateActive,
		lastUse: time.Now(),
		proto:   proto,
	}, nil
}

// send writes req and reads the response status/headers. The
// returned *http.Response's Body is still open and must be drained/closed
// by the caller.
func (c *conn) send(req *message.Request, timeout message.Timeout) (*http.Response, error) {
	httpReq, err := toHTTPRequest(req)
	if err != nil {
		return nil, err
	}

	if timeout.Write > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(timeout.Write))
	} else {
		_ = c.netConn.SetWriteDeadline(time.Time{})
	}
	if err := httpReq.Write(c.netConn); err != nil {
		return nil, classifyIOErr(err, relayerr.CodeWriteTimeout)
	}

	if timeout.Read > 0 {
		_ = c.netConn.SetReadDeadline(time.Now().Add(timeout.Read))
	} else {
		_ = c.netConn.SetReadDeadline(time.Time{})
	}
	resp, err := http.ReadResponse(c.br, httpReq)
	if err != nil {
		return nil, classifyIOErr(err, relayerr.CodeReadTimeout)
	}
	return resp, nil
}

// markActive transitions an idle connection back to ACTIVE under a lease.
func (c *conn) markActive() {
	c.mu.Lock()
	c.state = stateActive
	c.mu.Unlock()
}

// markIdle transitions an active connection back to IDLE on clean release.
func (c *conn) markIdle() {
	c.mu.Lock()
	c.state = stateIdle
	c.lastUse = time.Now()
	c.mu.Unlock()
}

// close transitions to CLOSED, idempotently. didClose reports whether this
// call performed the actual close (false if already CLOSED), so callers can
// avoid double-releasing pool bookkeeping (permits, open counts).
func (c *conn) close() (didClose bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return false, nil
	}
	c.state = stateClosed
	return true, c.netConn.Close()
}

// broken peeks the socket without consuming data to detect a remote close
// while idle, matching the "socket shows remote close" eviction
// criterion. A net.Error timeout means no data is pending and the
// connection is presumed alive.
func (c *conn) broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return true
	}
	_ = c.netConn.SetReadDeadline(time.Now().Add(time.Millisecond))
	_, err := c.br.Peek(1)
	_ = c.netConn.SetReadDeadline(time.Time{})
	if err == nil {
		// Unexpected bytes on an idle keep-alive connection; treat as broken
		// rather than risk desynchronized framing on reuse.
		return true
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false
	}
	return true
}

func (c *conn) lastUseTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUse
}
