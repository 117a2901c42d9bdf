package middleware

import (
	"context"

	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
)

// CookieJar is the subset of cookiejar.Jar RedirectMiddleware needs:
// extracting Set-Cookie headers from each intermediate response and
// reattaching the matching cookies to the next sub-request.
type CookieJar interface {
	SetFromResponse(resp *message.Response)
	ApplyTo(req *message.Request)
}

type visitedKey struct {
	method string
	url    string
}

// RedirectMiddleware follows 301/302/303/307/308 responses, rewriting the
// method/body per status code and re-applying cookies via jar at each hop.
func RedirectMiddleware(jar CookieJar) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(ctx context.Context, req *message.Request, rc message.RequestContext, timeout message.Timeout) (*message.Response, error) {
			if !rc.AllowRedirects {
				return next.Do(ctx, req, rc, timeout)
			}

			visited := map[visitedKey]bool{}
			var history []*message.Response
			cur := req

			for {
				visited[visitedKey{cur.Method, cur.URL.String()}] = true

				resp, err := next.Do(ctx, cur, rc, timeout)
				if err != nil {
					return nil, err
				}

				if jar != nil {
					jar.SetFromResponse(resp)
				}

				if !resp.IsRedirect() || resp.Header.Get("Location") == "" {
					resp.History = history
					return resp, nil
				}

				maxRedirects := rc.MaxRedirects
				if maxRedirects <= 0 {
					maxRedirects = message.DefaultRequestContext().MaxRedirects
				}
				if len(history) >= maxRedirects {
					_ = resp.Close()
					return nil, relayerr.Newf(relayerr.CodeTooManyRedirects, "exceeded %d redirects", maxRedirects).WithRequest(cur.Method, cur.URL.String())
				}

				nextReq, err := nextRedirectRequest(cur, resp)
				if err != nil {
					_ = resp.Close()
					return nil, err
				}

				if visited[visitedKey{nextReq.Method, nextReq.URL.String()}] {
					_ = resp.Close()
					return nil, relayerr.Newf(relayerr.CodeRedirectLoop, "redirect loop detected at %s", nextReq.URL.String()).WithRequest(nextReq.Method, nextReq.URL.String())
				}

				if jar != nil {
					jar.ApplyTo(nextReq)
				}

				// Drain the intermediate body so its connection can be
				// reused, rather than leaving it leased until GC.
				_, _ = resp.Read()

				history = append(history, resp)
				cur = nextReq
			}
		})
	}
}

// nextRedirectRequest builds the sub-request for the next hop, applying
// rewriting the method/body and stripping cross-authority headers
// stripping.
func nextRedirectRequest(prev *message.Request, resp *message.Response) (*message.Request, error) {
	location := resp.Header.Get("Location")
	target, err := prev.URL.Join(location)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInvalidURL, err, "resolving redirect Location")
	}

	next := prev.Clone()
	next.URL = target
	crossOrigin := !prev.URL.SameOrigin(target)

	switch resp.StatusCode {
	case 301, 302:
		if prev.Method == "POST" {
			next.Method = "GET"
			dropBody(next)
		} else {
			if err := preserveBody(next); err != nil {
				return nil, err
			}
		}
	case 303:
		next.Method = "GET"
		dropBody(next)
	case 307, 308:
		if err := preserveBody(next); err != nil {
			return nil, err
		}
	default:
		return nil, relayerr.Newf(relayerr.CodeNotRedirectResponse, "status %d is not a redirect", resp.StatusCode).WithRequest(prev.Method, prev.URL.String())
	}

	if crossOrigin {
		next.Header.Del("Authorization")
		next.Header.Del("Proxy-Authorization")
	}
	next.Header.Set("Host", target.Authority())
	setRefererForRedirect(next, prev.URL)

	return next, nil
}

// setRefererForRedirect sets Referer to prevURL on the next hop, dropping it
// instead when the hop downgrades from https to http: leaking the referring
// URL across that boundary is the one case user agents have long refused to
// do by default. Userinfo and fragment never belong on a Referer, so the
// header is built from scheme+authority+path rather than prevURL.String().
func setRefererForRedirect(next *message.Request, prevURL rurl.URL) {
	if prevURL.Scheme() == "https" && next.URL.Scheme() == "http" {
		next.Header.Del("Referer")
		return
	}
	next.Header.Set("Referer", prevURL.Scheme()+"://"+prevURL.Authority()+prevURL.FullPath())
}

func dropBody(req *message.Request) {
	req.Body = message.Empty
	req.Header.Del("Content-Length")
	req.Header.Del("Content-Type")
	req.Header.Del("Transfer-Encoding")
}

// preserveBody re-opens req's body for replay, needed when a redirect
// can_replay contract; a non-replayable body fails the redirect rather than
// silently sending a truncated one.
func preserveBody(req *message.Request) error {
	if req.Body == nil || req.Body == message.Empty {
		return nil
	}
	if !req.Body.CanReplay() {
		return relayerr.New(relayerr.CodeRedirectBodyUnavailable, "redirect requires replaying a non-replayable body").WithRequest(req.Method, req.URL.String())
	}
	fresh, err := req.Body.Reopen()
	if err != nil {
		return relayerr.Wrap(relayerr.CodeRedirectBodyUnavailable, err, "reopening body for redirect")
	}
	req.Body = fresh
	return nil
}
