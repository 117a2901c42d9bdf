package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
	"sync"
	"time"

	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
)

// hashFamily maps a Digest "algorithm" token to its hash constructor, the
// table RFC 7616 defines.
var hashFamily = map[string]func() hash.Hash{
	"MD5":          md5.New,
	"MD5-SESS":     md5.New,
	"SHA":          sha1.New,
	"SHA-SESS":     sha1.New,
	"SHA-256":      sha256.New,
	"SHA-256-SESS": sha256.New,
	"SHA-512":      sha512.New,
	"SHA-512-SESS": sha512.New,
}

// Digest implements RFC 7616 Digest auth's challenge-response flow. A
// Digest instance tracks one nonce-counter map shared across every
// request it authenticates, so a nonce issued for one origin and reused
// against another keeps incrementing from the same counter.
type Digest struct {
	username, password string

	mu sync.Mutex
	nc map[string]uint32 // nonce -> last counter value issued
}

var _ message.AuthProvider = (*Digest)(nil)

// NewDigest builds a Digest provider for username/password.
func NewDigest(username, password string) *Digest {
	return &Digest{username: username, password: password, nc: map[string]uint32{}}
}

func (d *Digest) Name() string { return "digest" }

// Apply is a no-op beyond validating the body can be replayed if a second,
// authenticated request turns out to be necessary: Digest only attaches
// credentials after seeing the server's challenge.
func (d *Digest) Apply(req *message.Request) error {
	if req.Body != nil && req.Body != message.Empty && !req.Body.CanReplay() {
		return relayerr.New(relayerr.CodeRequestBodyUnavailable,
			"digest auth requires a replayable body in case a second request is needed").WithRequest(req.Method, req.URL.String())
	}
	return nil
}

// HandleChallenge implements the RFC 7616 challenge-response handshake.
func (d *Digest) HandleChallenge(req *message.Request, resp *message.Response) (*message.Request, bool, error) {
	if resp.StatusCode != 401 || resp.Header.Get("WWW-Authenticate") == "" {
		return nil, false, nil
	}

	challenge, err := parseDigestChallenge(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil, false, err
	}

	header, err := d.buildAuthorizationHeader(req, challenge)
	if err != nil {
		return nil, false, err
	}

	retry := req.Clone()
	if req.Body != nil && req.Body != message.Empty {
		fresh, err := req.Body.Reopen()
		if err != nil {
			return nil, false, relayerr.Wrap(relayerr.CodeRequestBodyUnavailable, err, "reopening body for digest retry")
		}
		retry.Body = fresh
	}
	retry.Header.Set("Authorization", header)
	return retry, true, nil
}

type digestChallenge struct {
	realm, nonce, qop, opaque, algorithm string
}

// parseDigestChallenge parses a "Digest realm=\"...\", nonce=\"...\", ..."
// WWW-Authenticate value into its quoted/unquoted directive pairs.
func parseDigestChallenge(header string) (digestChallenge, error) {
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Digest") {
		return digestChallenge{}, relayerr.New(relayerr.CodeProtocolError, "WWW-Authenticate does not start with Digest")
	}

	fields := splitHTTPList(rest)
	values := map[string]string{}
	for _, field := range fields {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		values[strings.ToLower(strings.TrimSpace(key))] = unquote(strings.TrimSpace(value))
	}

	realm, okRealm := values["realm"]
	nonce, okNonce := values["nonce"]
	if !okRealm || !okNonce {
		return digestChallenge{}, relayerr.New(relayerr.CodeProtocolError, "malformed Digest WWW-Authenticate header")
	}

	algorithm := values["algorithm"]
	if algorithm == "" {
		algorithm = "MD5"
	}
	return digestChallenge{
		realm:     realm,
		nonce:     nonce,
		qop:       values["qop"],
		opaque:    values["opaque"],
		algorithm: strings.ToUpper(algorithm),
	}, nil
}

// splitHTTPList splits a comma-separated header value on commas that are
// not inside a quoted string.
func splitHTTPList(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		fields = append(fields, cur.String())
	}
	return fields
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func (d *Digest) buildAuthorizationHeader(req *message.Request, challenge digestChallenge) (string, error) {
	newHash, ok := hashFamily[challenge.algorithm]
	if !ok {
		return "", relayerr.Newf(relayerr.CodeProtocolError, "unsupported digest algorithm %q", challenge.algorithm)
	}
	digest := func(data string) string {
		h := newHash()
		h.Write([]byte(data))
		return hex.EncodeToString(h.Sum(nil))
	}

	path := req.URL.FullPath()
	a1 := d.username + ":" + challenge.realm + ":" + d.password
	a2 := req.Method + ":" + path
	ha2 := digest(a2)

	nc := d.nextNonceCount(challenge.nonce)
	ncValue := fmt.Sprintf("%08x", nc)
	cnonce := clientNonce(ncValue, challenge.nonce)

	ha1 := digest(a1)
	if strings.HasSuffix(strings.ToUpper(challenge.algorithm), "-SESS") {
		ha1 = digest(ha1 + ":" + challenge.nonce + ":" + cnonce)
	}

	qop, err := resolveQop(challenge.qop)
	if err != nil {
		return "", err
	}

	var response string
	if qop == "" {
		response = digest(ha1 + ":" + challenge.nonce + ":" + ha2)
	} else {
		response = digest(ha1 + ":" + challenge.nonce + ":" + ncValue + ":" + cnonce + ":" + qop + ":" + ha2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `username="%s", realm="%s", nonce="%s", uri="%s", response="%s", algorithm=%s`,
		d.username, challenge.realm, challenge.nonce, path, response, challenge.algorithm)
	if challenge.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, challenge.opaque)
	}
	if qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, qop, ncValue, cnonce)
	}
	return "Digest " + b.String(), nil
}

// nextNonceCount returns and increments the counter for nonce, locked
// across the whole Digest instance.
func (d *Digest) nextNonceCount(nonce string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.nc[nonce] + 1
	d.nc[nonce] = n
	return n
}

// clientNonce derives cnonce: the first 16 hex characters
// of SHA1(nc || nonce || ctime || 8 random bytes).
func clientNonce(ncValue, nonce string) string {
	var random [8]byte
	_, _ = rand.Read(random[:])
	h := sha1.New()
	h.Write([]byte(ncValue))
	h.Write([]byte(nonce))
	h.Write([]byte(time.Now().Format(time.ANSIC)))
	h.Write(random[:])
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// resolveQop picks "auth" out of a possibly comma-separated qop list;
// auth-int-only fails not-implemented, anything else is a
// protocol error.
func resolveQop(qop string) (string, error) {
	if qop == "" {
		return "", nil
	}
	options := strings.Split(qop, ",")
	hasAuthInt := false
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "auth" {
			return "auth", nil
		}
		if o == "auth-int" {
			hasAuthInt = true
		}
	}
	if hasAuthInt {
		return "", relayerr.New(relayerr.CodeNotImplemented, "digest auth-int is not implemented")
	}
	return "", relayerr.Newf(relayerr.CodeProtocolError, "unexpected qop value %q in digest challenge", qop)
}
