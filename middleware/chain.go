// Package middleware implements relay's composable request pipeline,
// a stack of layers, each of which may issue more than one
// sub-request and inspect each intermediate Response before producing the
// one it returns.
//
// The spec frames this as a coroutine that yields sub-requests and resumes
// with their responses. Go has no generators, so relay expresses the same
// shape the way github.com/sourcegraph/sourcegraph's internal/httpcli
// package does: a Middleware wraps a Doer with another Doer, and a layer
// that needs multiple round-trips (auth, redirects) simply calls the
// wrapped Doer more than once from inside its own Do method. Each call is
// one "yield"; its return value is what the generator would have received.
package middleware

import (
	"context"

	"github.com/relayhttp/relay/message"
)

// Doer sends one request to completion, the chain's inner primitive.
type Doer interface {
	Do(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error)
}

// DoerFunc adapts a plain function to a Doer.
type DoerFunc func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error)

func (f DoerFunc) Do(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
	return f(ctx, req, rc, timeout)
}

// Middleware wraps a Doer with one layer of pipeline behavior.
type Middleware func(next Doer) Doer

// Chain composes mws around base (typically a transport.Transport adapter),
// outermost first: Chain(base, A, B) runs A(B(base)). relay.New builds
// AuthMiddleware wrapping RedirectMiddleware wrapping the transport send.
func Chain(base Doer, mws ...Middleware) Doer {
	d := base
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}
