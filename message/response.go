package message

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/relayerr"
)

// Response is relay's response value object.
type Response struct {
	StatusCode  int
	Reason      string
	HTTPVersion string
	Header      hdr.Header
	Request     *Request
	History     []*Response
	Extensions  map[string]any
	Elapsed     time.Duration

	body     Body
	content  []byte
	consumed bool
	closed   bool
	streamed bool

	releaseOnce sync.Once
	release     func() error
}

// NewResponse builds a Response over a not-yet-read body. release is called
// exactly once, whenever the body is fully drained or explicitly closed; it
// is the connection pool's lease-release hook.
func NewResponse(status int, reason, httpVersion string, header hdr.Header, body Body, release func() error) *Response {
	if body == nil {
		body = Empty
	}
	if release == nil {
		release = func() error { return nil }
	}
	return &Response{
		StatusCode:  status,
		Reason:      reason,
		HTTPVersion: httpVersion,
		Header:      header,
		Extensions:  map[string]any{},
		body:        body,
		release:     release,
	}
}

func (r *Response) doRelease() error {
	var err error
	r.releaseOnce.Do(func() { err = r.release() })
	return err
}

// Read drains the body fully into Content, exactly once; subsequent calls
// return the cached bytes. Equivalent to read()/aread() in other clients.
func (r *Response) Read() ([]byte, error) {
	if r.consumed {
		return r.content, nil
	}
	if r.closed {
		return nil, relayerr.New(relayerr.CodeResponseClosed, "response body already closed")
	}
	data, readErr := io.ReadAll(r.body)
	r.consumed = true
	r.content = data
	relErr := r.doRelease()
	if readErr != nil {
		return nil, relayerr.Wrap(relayerr.CodeNetworkError, readErr, "reading response body")
	}
	if relErr != nil {
		return data, relErr
	}
	return data, nil
}

// Content returns the bytes cached by a prior Read call.
// accessing content before Read fails with CodeResponseNotRead.
func (r *Response) Content() ([]byte, error) {
	if !r.consumed {
		return nil, relayerr.New(relayerr.CodeResponseNotRead, "call Read before Content")
	}
	return r.content, nil
}

// Decode reads the body fully and unmarshals it as JSON into v.
func (r *Response) Decode(v any) error {
	data, err := r.Read()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return relayerr.Wrap(relayerr.CodeDecodingError, err, "decoding JSON response body")
	}
	return nil
}

// streamReader wraps the body so that reaching EOF during iteration
// releases the connection lease automatically.
type streamReader struct {
	resp *Response
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.resp.body.Read(p)
	if err == io.EOF {
		s.resp.consumed = true
		if relErr := s.resp.doRelease(); relErr != nil && n == 0 {
			return n, relErr
		}
	}
	return n, err
}

// Stream returns an io.Reader for lazy iteration. The caller must either
// read it to EOF (which releases the lease automatically) or call Close
// on the Response after abandoning it early.
func (r *Response) Stream() (io.Reader, error) {
	if r.consumed {
		return nil, relayerr.New(relayerr.CodeStreamConsumed, "response body already consumed")
	}
	if r.closed {
		return nil, relayerr.New(relayerr.CodeResponseClosed, "response body already closed")
	}
	r.streamed = true
	return &streamReader{resp: r}, nil
}

// Close releases the connection lease. If the body had unread bytes
// remaining, the underlying connection is not considered reusable — this
// is enforced by the release callback the Transport supplies, not here.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if bc, ok := r.body.(io.Closer); ok {
		_ = bc.Close()
	}
	return r.doRelease()
}

// RaiseForStatus mirrors raise_for_status(): a 4xx/5xx status
// yields a *relayerr.Error with CodeHTTPStatus; any other status returns nil.
func (r *Response) RaiseForStatus() error {
	if r.StatusCode < 400 {
		return nil
	}
	return relayerr.Newf(relayerr.CodeHTTPStatus, "%d %s", r.StatusCode, r.Reason).WithStatus(r.StatusCode)
}

// IsRedirect reports whether StatusCode is one of the redirect codes
// middleware.RedirectMiddleware recognizes.
func (r *Response) IsRedirect() bool {
	switch r.StatusCode {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}
