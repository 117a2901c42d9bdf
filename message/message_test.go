package message

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
)

func TestNewRequestSetsHostAndContentLength(t *testing.T) {
	u, _ := rurl.Parse("https://example.com/path")
	req, err := NewRequest("POST", u, NewBytesBody([]byte("hello")))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if got := req.Header.Get("Host"); got != "example.com" {
		t.Errorf("Host = %q", got)
	}
	if got := req.Header.Get("Content-Length"); got != "5" {
		t.Errorf("Content-Length = %q", got)
	}
}

func TestNewRequestEmptyBodyHasNoFramingHeader(t *testing.T) {
	u, _ := rurl.Parse("https://example.com/")
	req, err := NewRequest("GET", u, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if req.Header.Get("Content-Length") != "" || req.Header.Get("Transfer-Encoding") != "" {
		t.Error("expected no framing headers for empty body")
	}
}

func TestNewRequestSetsDefaultHeaders(t *testing.T) {
	u, _ := rurl.Parse("https://example.com/")
	req, err := NewRequest("GET", u, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if got := req.Header.Get("Accept"); got != "*/*" {
		t.Errorf("Accept = %q", got)
	}
	if got := req.Header.Get("Accept-Encoding"); got != "identity" {
		t.Errorf("Accept-Encoding = %q", got)
	}
	if got := req.Header.Get("Connection"); got != "keep-alive" {
		t.Errorf("Connection = %q", got)
	}
}

func TestNewRequestDoesNotOverrideExplicitDefaultHeaders(t *testing.T) {
	u, _ := rurl.Parse("https://example.com/")
	req, err := NewRequest("GET", u, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.applyDefaultHeaders()
	if got := req.Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want explicit value preserved", got)
	}
}

func TestInvalidMethodRejected(t *testing.T) {
	u, _ := rurl.Parse("https://example.com/")
	if _, err := NewRequest("G ET", u, nil); err == nil {
		t.Fatal("expected error for invalid method token")
	}
}

func TestResponseContentBeforeReadFails(t *testing.T) {
	resp := NewResponse(200, "OK", "HTTP/1.1", nil, NewBytesBody([]byte("hi")), nil)
	if _, err := resp.Content(); err == nil {
		t.Fatal("expected ResponseNotRead error")
	} else if code, _ := relayerr.CodeOf(err); code != relayerr.CodeResponseNotRead {
		t.Errorf("code = %v", code)
	}
}

func TestResponseReadThenContentIdempotent(t *testing.T) {
	released := false
	resp := NewResponse(200, "OK", "HTTP/1.1", nil, NewBytesBody([]byte("hi")), func() error {
		released = true
		return nil
	})
	data, err := resp.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hi" {
		t.Errorf("data = %q", data)
	}
	if !released {
		t.Error("expected release to be called")
	}
	data2, err := resp.Read()
	if err != nil || string(data2) != "hi" {
		t.Errorf("second Read = %q, %v", data2, err)
	}
	content, err := resp.Content()
	if err != nil || string(content) != "hi" {
		t.Errorf("Content = %q, %v", content, err)
	}
}

func TestResponseReadThenCloseIsIdempotentRelease(t *testing.T) {
	releases := 0
	resp := NewResponse(200, "OK", "HTTP/1.1", nil, NewBytesBody([]byte("hi")), func() error {
		releases++
		return nil
	})
	if _, err := resp.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := resp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if releases != 1 {
		t.Errorf("release called %d times, want 1", releases)
	}
}

func TestStreamConsumedAfterRead(t *testing.T) {
	resp := NewResponse(200, "OK", "HTTP/1.1", nil, NewBytesBody([]byte("hi")), nil)
	if _, err := resp.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := resp.Stream(); err == nil {
		t.Fatal("expected StreamConsumed error")
	}
}

func TestStreamReleasesOnEOF(t *testing.T) {
	released := false
	resp := NewResponse(200, "OK", "HTTP/1.1", nil, NewBytesBody([]byte("hi")), func() error {
		released = true
		return nil
	})
	r, err := resp.Stream()
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !released {
		t.Error("expected release on stream EOF")
	}
}

func TestStreamBodyCloseWithoutEOFStaysUnconsumed(t *testing.T) {
	body := NewStreamBody(io.NopCloser(strings.NewReader("unread bytes")), -1)
	if err := body.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if body.IsConsumed() {
		t.Fatal("Close before EOF must not mark the body consumed")
	}
}

func TestStreamBodyReadToEOFMarksConsumed(t *testing.T) {
	body := NewStreamBody(io.NopCloser(strings.NewReader("hi")), 2)
	if _, err := io.ReadAll(body); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !body.IsConsumed() {
		t.Fatal("expected IsConsumed after reading to EOF")
	}
}

func TestResponseCloseBeforeReadDoesNotMarkBodyConsumed(t *testing.T) {
	body := NewStreamBody(io.NopCloser(strings.NewReader("unread bytes")), -1)
	resp := NewResponse(200, "OK", "HTTP/1.1", nil, body, nil)
	if err := resp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if body.IsConsumed() {
		t.Fatal("closing an unread response must not mark its body consumed")
	}
}

func TestNonReplayableBodyReopenFails(t *testing.T) {
	body := NewStreamBody(io.NopCloser(errReader{}), -1)
	if body.CanReplay() {
		t.Fatal("stream body should not be replayable")
	}
	if _, err := body.Reopen(); err == nil {
		t.Fatal("expected RequestBodyUnavailable error")
	} else if code, _ := relayerr.CodeOf(err); code != relayerr.CodeRequestBodyUnavailable {
		t.Errorf("code = %v", code)
	}
}

func TestRaiseForStatus(t *testing.T) {
	ok := NewResponse(200, "OK", "HTTP/1.1", nil, Empty, nil)
	if err := ok.RaiseForStatus(); err != nil {
		t.Errorf("expected nil for 200, got %v", err)
	}
	bad := NewResponse(404, "Not Found", "HTTP/1.1", nil, Empty, nil)
	if err := bad.RaiseForStatus(); err == nil {
		t.Fatal("expected error for 404")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }
