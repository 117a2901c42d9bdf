package auth

import "github.com/relayhttp/relay/message"

// Custom wraps a user-supplied function that rewrites each outgoing
// request before it is sent.
type Custom struct {
	fn func(*message.Request) error
}

var _ message.AuthProvider = (*Custom)(nil)

// NewCustom builds a Custom provider around fn. fn mutates req in place
// (adding headers, signing, etc.) and returns an error to abort the attempt.
func NewCustom(fn func(*message.Request) error) *Custom {
	return &Custom{fn: fn}
}

func (c *Custom) Name() string { return "custom" }

func (c *Custom) Apply(req *message.Request) error {
	return c.fn(req)
}

func (c *Custom) HandleChallenge(req *message.Request, resp *message.Response) (*message.Request, bool, error) {
	return nil, false, nil
}
