// Package auth implements relay's authentication flows:
// Basic, Custom, and Digest, each a message.AuthProvider that
// middleware.AuthMiddleware drives through the Apply/HandleChallenge
// shape message.AuthProvider defines.
package auth

import (
	"encoding/base64"

	"github.com/relayhttp/relay/message"
)

// Basic implements HTTP Basic auth: the Authorization header is computed
// once and attached to every attempt.
type Basic struct {
	header string
}

var _ message.AuthProvider = (*Basic)(nil)

// NewBasic builds a Basic provider for username/password.
func NewBasic(username, password string) *Basic {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return &Basic{header: "Basic " + token}
}

func (b *Basic) Name() string { return "basic" }

func (b *Basic) Apply(req *message.Request) error {
	req.Header.Set("Authorization", b.header)
	return nil
}

func (b *Basic) HandleChallenge(req *message.Request, resp *message.Response) (*message.Request, bool, error) {
	return nil, false, nil
}
