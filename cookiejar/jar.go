// Package cookiejar implements relay's per-client cookie jar: a
// (domain, path, name) → value+expiry map, locked across extraction and
// attachment. RFC 6265 cookie parsing/serialization itself is an external
// collaborator, so this package leans on net/http.ParseSetCookie rather
// than hand-rolling the grammar;
// the jar's matching and conflict-detection logic is relay's own.
package cookiejar

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/middleware"
	"github.com/relayhttp/relay/relayerr"
)

var _ middleware.CookieJar = (*Jar)(nil)

type entry struct {
	cookie  *http.Cookie
	domain  string
	path    string
	expires time.Time
	hasExp  bool
}

func (e *entry) expired(now time.Time) bool {
	if !e.hasExp {
		return false
	}
	return now.After(e.expires)
}

// Jar is a mutex-protected (domain, path, name) -> cookie map.
// "Cookies" data model.
type Jar struct {
	mu      sync.Mutex
	entries map[string]*entry // key: domain + "\x00" + path + "\x00" + name
}

// New builds an empty Jar.
func New() *Jar {
	return &Jar{entries: map[string]*entry{}}
}

func key(domain, path, name string) string {
	return domain + "\x00" + path + "\x00" + name
}

// SetFromResponse extracts every Set-Cookie header on resp into the jar,
// resp.Request supplies the default domain/path when a
// cookie omits Domain/Path, per RFC 6265 §5.2.
func (j *Jar) SetFromResponse(resp *message.Response) {
	if resp == nil || resp.Request == nil {
		return
	}
	values := hdr.GetAll(resp.Header, "Set-Cookie")
	if len(values) == 0 {
		return
	}
	defaultDomain := resp.Request.URL.Host()
	defaultPath := defaultPathFor(resp.Request.URL.Path())

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, v := range values {
		c, err := http.ParseSetCookie(v)
		if err != nil || c.Name == "" {
			continue
		}
		domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if domain == "" {
			domain = defaultDomain
		} else if suffix, icann := publicsuffix.PublicSuffix(domain); icann && suffix == domain {
			// A cookie explicitly scoped to a bare public suffix (".com",
			// ".co.uk") would be visible to every site under it; reject it.
			continue
		}
		path := c.Path
		if path == "" {
			path = defaultPath
		}

		e := &entry{cookie: c, domain: domain, path: path}
		if !c.Expires.IsZero() {
			e.expires, e.hasExp = c.Expires, true
		} else if c.MaxAge != 0 {
			if c.MaxAge < 0 {
				delete(j.entries, key(domain, path, c.Name))
				continue
			}
			e.expires, e.hasExp = time.Now().Add(time.Duration(c.MaxAge)*time.Second), true
		}
		j.entries[key(domain, path, c.Name)] = e
	}
}

func defaultPathFor(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	if i := strings.LastIndexByte(p, '/'); i > 0 {
		return p[:i]
	}
	return "/"
}

// ApplyTo attaches every cookie matching req's URL to req's Cookie header,
// attaches cookies to the next sub-request when a redirect follows. Matching is by
// domain suffix (or exact host-only match) and path prefix; secure cookies
// are withheld from plain http requests.
func (j *Jar) ApplyTo(req *message.Request) {
	host := req.URL.Host()
	path := req.URL.Path()
	if path == "" {
		path = "/"
	}
	secureOK := req.URL.Scheme() == "https"
	now := time.Now()

	j.mu.Lock()
	var matched []*http.Cookie
	for _, e := range j.entries {
		if e.expired(now) {
			continue
		}
		if !domainMatches(host, e.domain) {
			continue
		}
		if !pathMatches(path, e.path) {
			continue
		}
		if e.cookie.Secure && !secureOK {
			continue
		}
		matched = append(matched, e.cookie)
	}
	j.mu.Unlock()

	if len(matched) == 0 {
		return
	}
	var parts []string
	for _, c := range matched {
		parts = append(parts, c.Name+"="+c.Value)
	}
	req.Header.Set("Cookie", strings.Join(parts, "; "))
}

// Get returns the single cookie named name visible across every
// (domain, path) pair currently in the jar. More than one distinct value
// fails with CodeCookieConflict when "get(name)
// fails with CookieConflict".
func (j *Jar) Get(name string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var found string
	seen := false
	for _, e := range j.entries {
		if e.cookie.Name != name || e.expired(time.Now()) {
			continue
		}
		if !seen {
			found, seen = e.cookie.Value, true
			continue
		}
		if e.cookie.Value != found {
			return "", relayerr.Newf(relayerr.CodeCookieConflict, "ambiguous cookie %q: multiple (domain, path) entries disagree", name)
		}
	}
	if !seen {
		return "", relayerr.Newf(relayerr.CodeCookieConflict, "no cookie named %q", name)
	}
	return found, nil
}

func domainMatches(host, cookieDomain string) bool {
	host = strings.ToLower(host)
	if host == cookieDomain {
		return true
	}
	return strings.HasSuffix(host, "."+cookieDomain)
}

func pathMatches(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if reqPath == cookiePath {
		return true
	}
	return strings.HasPrefix(reqPath, cookiePath+"/")
}
