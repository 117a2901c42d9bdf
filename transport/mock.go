package transport

import (
	"context"

	"github.com/relayhttp/relay/message"
)

// Handler is the user-supplied function a MockTransport dispatches to.
type Handler func(ctx context.Context, req *message.Request) (*message.Response, error)

// MockTransport wraps a Handler as a Transport for tests, bypassing the
// network entirely, matching the "tagged implementations selected by
// URL matching" design note (here there's only one tag: everything).
type MockTransport struct {
	Handler Handler
}

var _ Transport = (*MockTransport)(nil)

// NewMockTransport builds a MockTransport around handler.
func NewMockTransport(handler Handler) *MockTransport {
	return &MockTransport{Handler: handler}
}

func (m *MockTransport) Send(ctx context.Context, req *message.Request, _ message.Timeout) (*message.Response, error) {
	resp, err := m.Handler(ctx, req)
	if err == nil && resp != nil && resp.Request == nil {
		resp.Request = req
	}
	return resp, err
}

func (m *MockTransport) Close() error { return nil }
