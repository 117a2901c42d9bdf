package transport

import (
	"context"
	"crypto/tls"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/internal/logging"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
)

// Pool is the default Transport: a connection pool keyed by origin with
// soft/hard concurrency limits and timed expiry.
type Pool struct {
	mu     sync.Mutex
	idle   map[Origin][]*conn
	conns  map[*conn]struct{} // every open connection, idle or active
	closed bool

	limits    message.PoolLimits
	sem       chan struct{}
	tlsConfig *tls.Config
	log       logging.Logger
}

// NewPool constructs a Pool honoring limits. A nil logger disables logging.
func NewPool(limits message.PoolLimits, tlsConfig *tls.Config, log logging.Logger) *Pool {
	if limits.HardLimit <= 0 {
		limits.HardLimit = message.DefaultPoolLimits().HardLimit
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Pool{
		idle:      make(map[Origin][]*conn),
		conns:     make(map[*conn]struct{}),
		limits:    limits,
		sem:       make(chan struct{}, limits.HardLimit),
		tlsConfig: tlsConfig,
		log:       log,
	}
}

var _ Transport = (*Pool)(nil)

// Send implements Transport by translating (Request, Timeout) into a
// Response, per the pool's responsibility as the default Transport.
func (p *Pool) Send(ctx context.Context, req *message.Request, timeout message.Timeout) (*message.Response, error) {
	origin := Origin{Scheme: req.URL.Scheme(), Host: req.URL.Host(), Port: req.URL.EffectivePort()}

	c, err := p.acquire(ctx, origin, timeout)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.send(req, timeout)
	if err != nil {
		p.log.Debug("connection send failed, discarding", "origin", origin.String(), "err", err)
		_ = p.discard(c)
		return nil, err
	}
	elapsed := time.Since(start)

	keepAlive := !httpResp.Close && (httpResp.ProtoAtLeast(1, 1) ||
		strings.EqualFold(httpResp.Header.Get("Connection"), "keep-alive"))

	body := message.NewStreamBody(httpResp.Body, httpResp.ContentLength)

	var once sync.Once
	release := func() error {
		var err error
		once.Do(func() {
			if keepAlive && body.IsConsumed() && !c.broken() {
				p.release(c)
			} else {
				err = p.discard(c)
			}
		})
		return err
	}

	reason := strings.TrimSpace(strings.TrimPrefix(httpResp.Status, strconv.Itoa(httpResp.StatusCode)))
	resp := message.NewResponse(httpResp.StatusCode, reason, httpResp.Proto, hdr.Header(httpResp.Header), body, release)
	resp.Elapsed = elapsed
	resp.Request = req
	return resp, nil
}

// Close shuts down every connection owned by the pool and frees every
// semaphore permit, matching the connection lifecycle and concurrency
// (active == idle == 0, all permits free, after Close).
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]*conn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[*conn]struct{})
	p.idle = make(map[Origin][]*conn)
	p.mu.Unlock()

	for _, c := range conns {
		if did, _ := c.close(); did {
			<-p.sem
		}
	}
	return nil
}

// acquire implements the pool's four-step acquisition algorithm.
func (p *Pool) acquire(ctx context.Context, origin Origin, timeout message.Timeout) (*conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, relayerr.New(relayerr.CodeNetworkError, "connection pool is closed")
	}
	p.evictExpiredLocked()
	if c := p.popIdleLocked(origin); c != nil {
		p.mu.Unlock()
		c.markActive()
		return c, nil
	}
	p.mu.Unlock()

	if err := p.acquirePermit(ctx, timeout); err != nil {
		return nil, err
	}

	c, err := dialConn(ctx, origin, timeout, p.tlsConfig)
	if err != nil {
		<-p.sem
		return nil, err
	}

	p.mu.Lock()
	p.conns[c] = struct{}{}
	p.mu.Unlock()
	return c, nil
}

// acquirePermit acquires a hard-limit semaphore permit, evicting an idle
// connection from another origin first if the pool is saturated. It waits
// up to timeout.Pool before failing with CodePoolTimeout.
func (p *Pool) acquirePermit(ctx context.Context, timeout message.Timeout) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	default:
	}

	if p.evictOneIdle() {
		select {
		case p.sem <- struct{}{}:
			return nil
		default:
		}
	}

	waitCtx := ctx
	if timeout.Pool > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout.Pool)
		defer cancel()
	} else if timeout.Pool < 0 {
		// Negative Pool timeout means "fail immediately if not already free".
		return relayerr.New(relayerr.CodePoolTimeout, "pool saturated, no wait configured")
	}

	select {
	case p.sem <- struct{}{}:
		return nil
	case <-waitCtx.Done():
		return relayerr.New(relayerr.CodePoolTimeout, "timed out waiting for a connection pool permit")
	}
}

// popIdleLocked pops a usable idle connection for origin, discarding any
// expired or broken ones it encounters along the way. Caller holds p.mu.
func (p *Pool) popIdleLocked(origin Origin) *conn {
	list := p.idle[origin]
	for len(list) > 0 {
		c := list[len(list)-1]
		list = list[:len(list)-1]
		p.idle[origin] = list
		if p.isExpiredLocked(c) || c.broken() {
			p.closeAndFreeLocked(c)
			continue
		}
		return c
	}
	return nil
}

// evictExpiredLocked sweeps every origin's idle list for expired/broken
// connections, running a periodic check invoked
// opportunistically on each send". Caller holds p.mu.
func (p *Pool) evictExpiredLocked() {
	for origin, list := range p.idle {
		kept := list[:0]
		for _, c := range list {
			if p.isExpiredLocked(c) || c.broken() {
				p.closeAndFreeLocked(c)
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(p.idle, origin)
		} else {
			p.idle[origin] = kept
		}
	}
}

// isExpiredLocked implements the keepalive_expiry boundary
// behavior: 0 expires every idle connection immediately; negative disables
// expiry; positive is the usual duration check.
func (p *Pool) isExpiredLocked(c *conn) bool {
	switch {
	case p.limits.KeepAliveExpiry < 0:
		return false
	case p.limits.KeepAliveExpiry == 0:
		return true
	default:
		return time.Since(c.lastUseTime()) > p.limits.KeepAliveExpiry
	}
}

// closeAndFreeLocked closes c and frees its bookkeeping. Caller holds p.mu.
func (p *Pool) closeAndFreeLocked(c *conn) {
	did, _ := c.close()
	delete(p.conns, c)
	if did {
		<-p.sem
	}
}

// evictOneIdle closes the least-recently-used idle connection across every
// origin, freeing one permit, the pool's LRU eviction step.
func (p *Pool) evictOneIdle() bool {
	p.mu.Lock()
	var victimOrigin Origin
	var victimIdx = -1
	var oldest time.Time
	for origin, list := range p.idle {
		for i, c := range list {
			t := c.lastUseTime()
			if victimIdx == -1 || t.Before(oldest) {
				victimOrigin, victimIdx, oldest = origin, i, t
			}
		}
	}
	if victimIdx == -1 {
		p.mu.Unlock()
		return false
	}
	c := p.idle[victimOrigin][victimIdx]
	p.idle[victimOrigin] = append(p.idle[victimOrigin][:victimIdx], p.idle[victimOrigin][victimIdx+1:]...)
	delete(p.conns, c)
	p.mu.Unlock()

	did, _ := c.close()
	if did {
		<-p.sem
	}
	return did
}

// release returns c to IDLE, trimming it away immediately if the pool
// already holds soft_limit idle connections.
func (p *Pool) release(c *conn) {
	c.markIdle()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = p.discard(c)
		return
	}
	total := 0
	for _, list := range p.idle {
		total += len(list)
	}
	if p.limits.SoftLimit > 0 && total >= p.limits.SoftLimit {
		p.mu.Unlock()
		_ = p.discard(c)
		return
	}
	p.idle[c.origin] = append(p.idle[c.origin], c)
	p.mu.Unlock()
}

// discard closes c and frees its pool bookkeeping (permit, open count),
// idempotently.
func (p *Pool) discard(c *conn) error {
	did, err := c.close()
	p.mu.Lock()
	delete(p.conns, c)
	p.mu.Unlock()
	if did {
		<-p.sem
	}
	return err
}
