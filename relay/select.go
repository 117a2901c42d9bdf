// Package relay is the client façade: it holds
// per-client defaults, merges per-call overrides, selects a transport for
// each request's URL, and drives the middleware pipeline to completion.
package relay

import (
	"fmt"
	"strings"

	"github.com/relayhttp/relay/rurl"
	"github.com/relayhttp/relay/transport"
)

// transportTable selects a transport.Transport for a URL out of a
// direct transport and a set of proxies keyed by selector string, per
// a priority-ordered lookup.
type transportTable struct {
	direct  transport.Transport
	proxies map[string]transport.Transport
}

func newTransportTable(direct transport.Transport) *transportTable {
	return &transportTable{direct: direct, proxies: map[string]transport.Transport{}}
}

// setProxy registers t under selector (e.g. "https://proxy.internal:3128",
// "http://example.com", "all", "https").
func (tt *transportTable) setProxy(selector string, t transport.Transport) {
	tt.proxies[selector] = t
}

func (tt *transportTable) selectFor(u rurl.URL) transport.Transport {
	scheme, host, port := u.Origin()
	for _, key := range candidateKeys(scheme, host, port, u.Port() == "") {
		if t, ok := tt.proxies[key]; ok {
			return t
		}
	}
	return tt.direct
}

// candidateKeys returns the lookup keys in priority order:
// "{scheme}://{host}:{port}", "{scheme}://{host}" (default port only),
// "all://{host}:{port}" (+ "all://{host}" for default port), scheme alone,
// then "all".
func candidateKeys(scheme, host, port string, defaultPort bool) []string {
	keys := []string{fmt.Sprintf("%s://%s:%s", scheme, host, port)}
	if defaultPort {
		keys = append(keys, fmt.Sprintf("%s://%s", scheme, host))
	}
	keys = append(keys, fmt.Sprintf("all://%s:%s", host, port))
	if defaultPort {
		keys = append(keys, fmt.Sprintf("all://%s", host))
	}
	keys = append(keys, strings.ToLower(scheme), "all")
	return keys
}

func (tt *transportTable) closeAll() error {
	var firstErr error
	if err := tt.direct.Close(); err != nil {
		firstErr = err
	}
	seen := map[transport.Transport]bool{tt.direct: true}
	for _, t := range tt.proxies {
		if seen[t] {
			continue
		}
		seen[t] = true
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
