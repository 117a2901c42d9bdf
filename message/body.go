// Package message implements relay's Request/Response lifecycle: value
// objects plus streaming bodies with the read-exactly-once guarantees a
// client library needs.
package message

import (
	"bytes"
	"io"

	"github.com/relayhttp/relay/relayerr"
)

// Body is a lazy byte-chunk stream with three capability flags:
// CanReplay, KnownLength, IsConsumed.
type Body interface {
	io.Reader
	io.Closer

	// CanReplay reports whether Reopen can produce a fresh, unread copy.
	CanReplay() bool
	// KnownLength returns the byte count for Content-Length, if known.
	KnownLength() (int64, bool)
	// IsConsumed reports whether the body has been fully iterated.
	IsConsumed() bool
	// Reopen returns a fresh, unread Body for retry (Digest, 307/308
	// redirects). It fails with CodeRequestBodyUnavailable when
	// CanReplay is false.
	Reopen() (Body, error)
}

// Empty is the Body of a request/response with no payload.
var Empty Body = emptyBody{}

type emptyBody struct{}

func (emptyBody) Read([]byte) (int, error)        { return 0, io.EOF }
func (emptyBody) Close() error                     { return nil }
func (emptyBody) CanReplay() bool                  { return true }
func (emptyBody) KnownLength() (int64, bool)       { return 0, true }
func (emptyBody) IsConsumed() bool                 { return true }
func (emptyBody) Reopen() (Body, error)            { return Empty, nil }

// bytesBody is a fully-buffered, replayable body: the common case for
// request bodies built from []byte, strings, or forms.
type bytesBody struct {
	data     []byte
	r        *bytes.Reader
	consumed bool
}

// NewBytesBody wraps data as a replayable Body.
func NewBytesBody(data []byte) Body {
	return &bytesBody{data: data, r: bytes.NewReader(data)}
}

func (b *bytesBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		b.consumed = true
	}
	return n, err
}

func (b *bytesBody) Close() error {
	return nil
}

func (b *bytesBody) CanReplay() bool            { return true }
func (b *bytesBody) KnownLength() (int64, bool) { return int64(len(b.data)), true }
func (b *bytesBody) IsConsumed() bool           { return b.consumed }

func (b *bytesBody) Reopen() (Body, error) {
	return NewBytesBody(b.data), nil
}

// streamBody wraps an arbitrary, single-use io.ReadCloser (a file, a
// network stream) that cannot be replayed.
type streamBody struct {
	rc       io.ReadCloser
	length   int64
	hasLen   bool
	consumed bool
}

// NewStreamBody wraps rc as a non-replayable Body. length < 0 means unknown.
func NewStreamBody(rc io.ReadCloser, length int64) Body {
	return &streamBody{rc: rc, length: length, hasLen: length >= 0}
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if err == io.EOF {
		s.consumed = true
	}
	return n, err
}

// Close releases the underlying reader without marking the body consumed:
// a body closed before reaching EOF still has unread bytes on the wire, and
// IsConsumed must keep reporting that so callers don't reuse the connection.
func (s *streamBody) Close() error {
	return s.rc.Close()
}

func (s *streamBody) CanReplay() bool { return false }
func (s *streamBody) KnownLength() (int64, bool) {
	if !s.hasLen {
		return 0, false
	}
	return s.length, true
}
func (s *streamBody) IsConsumed() bool { return s.consumed }

func (s *streamBody) Reopen() (Body, error) {
	return nil, relayerr.New(relayerr.CodeRequestBodyUnavailable,
		"body is a single-use stream and cannot be replayed")
}

// seekerBody adapts an io.ReadSeeker (an *os.File, a
// bytes.Reader caller already owns) into a replayable Body by seeking
// back to 0 on Reopen, instead of buffering the whole payload in memory.
type seekerBody struct {
	rs       io.ReadSeeker
	length   int64
	hasLen   bool
	consumed bool
}

// NewSeekerBody wraps rs as a replayable Body without buffering it.
func NewSeekerBody(rs io.ReadSeeker, length int64) Body {
	return &seekerBody{rs: rs, length: length, hasLen: length >= 0}
}

func (s *seekerBody) Read(p []byte) (int, error) {
	n, err := s.rs.Read(p)
	if err == io.EOF {
		s.consumed = true
	}
	return n, err
}

func (s *seekerBody) Close() error {
	if rc, ok := s.rs.(io.Closer); ok {
		return rc.Close()
	}
	return nil
}

func (s *seekerBody) CanReplay() bool { return true }
func (s *seekerBody) KnownLength() (int64, bool) {
	if !s.hasLen {
		return 0, false
	}
	return s.length, true
}
func (s *seekerBody) IsConsumed() bool { return s.consumed }

func (s *seekerBody) Reopen() (Body, error) {
	if _, err := s.rs.Seek(0, io.SeekStart); err != nil {
		return nil, relayerr.Wrap(relayerr.CodeRequestBodyUnavailable, err, "seeking body to start for replay")
	}
	s.consumed = false
	return s, nil
}
