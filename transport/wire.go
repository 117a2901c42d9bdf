package transport

import (
	"io"
	"net"
	"net/http"

	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
)

// toHTTPRequest adapts a message.Request to the net/http.Request that
// (*http.Request).Write knows how to serialize. HTTP/1 wire framing is an
// explicit external collaborator, so relay delegates
// the actual byte encoding to the standard library here instead of
// hand-rolling a request-line/header writer.
func toHTTPRequest(req *message.Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(req.Context(), req.Method, req.URL.String(), readCloserOf(req.Body))
	if err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInvalidURL, err, "building wire request")
	}
	httpReq.Header = req.Header.Clone()
	httpReq.Host = req.Header.Get("Host")
	if n, ok := req.Body.KnownLength(); ok {
		httpReq.ContentLength = n
	} else {
		httpReq.ContentLength = -1
	}
	return httpReq, nil
}

func readCloserOf(b message.Body) io.ReadCloser {
	if b == nil || b == message.Empty {
		return nil
	}
	return io.NopCloser(b)
}

// classifyIOErr maps a transport-level I/O error to relay's error taxonomy:
// a net.Error Timeout becomes timeoutCode, anything else a NetworkError.
func classifyIOErr(err error, timeoutCode relayerr.Code) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return relayerr.Wrap(timeoutCode, err, "i/o timeout")
	}
	return relayerr.Wrap(relayerr.CodeNetworkError, err, "transport i/o error")
}
