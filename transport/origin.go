// Package transport implements relay's Transport capability interface and
// its default implementation, the connection Pool, plus
// ProxyTransport and a MockTransport test double.
package transport

import (
	"context"
	"fmt"

	"github.com/relayhttp/relay/message"
)

// Origin is the (scheme, host, port) tuple that keys connection pooling.
// Connections are never shared across origins.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

func (o Origin) String() string { return fmt.Sprintf("%s://%s:%s", o.Scheme, o.Host, o.Port) }

// Addr returns "host:port" suitable for net.Dial.
func (o Origin) Addr() string { return o.Host + ":" + o.Port }

// Transport accepts a fully-prepared Request and a Timeout policy and
// returns a Response whose body is a lazy stream.
type Transport interface {
	Send(ctx context.Context, req *message.Request, timeout message.Timeout) (*message.Response, error)
	Close() error
}
