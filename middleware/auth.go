package middleware

import (
	"context"

	"github.com/relayhttp/relay/message"
)

// AuthMiddleware drives whatever message.AuthProvider the call's
// RequestContext carries. Provider selection itself
// (tuple/callable/instance → URL userinfo → netrc → passthrough) happens
// one layer up, in package relay, which is the only layer that knows about
// client-level defaults and netenv; by the time a request reaches here,
// rc.Auth is already the concrete provider to drive (or nil).
func AuthMiddleware() Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
			if rc.Auth == nil {
				return next.Do(ctx, req, rc, timeout)
			}

			attempt := req.Clone()
			if err := rc.Auth.Apply(attempt); err != nil {
				return nil, err
			}

			resp, err := next.Do(ctx, attempt, rc, timeout)
			if err != nil {
				return nil, err
			}

			retry, ok, err := rc.Auth.HandleChallenge(attempt, resp)
			if err != nil {
				_, _ = resp.Read()
				return nil, err
			}
			if !ok {
				return resp, nil
			}

			_, _ = resp.Read()
			final, err := next.Do(ctx, retry, rc, timeout)
			if err != nil {
				return nil, err
			}
			final.History = append(append([]*message.Response{}, resp), final.History...)
			return final, nil
		})
	}
}
