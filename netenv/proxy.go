// Package netenv implements relay's environment-discovery helpers: pure
// functions reading proxy/netrc/cert env vars, never mutating any shared
// state, using github.com/mitchellh/go-homedir for home-directory
// resolution.
package netenv

import (
	"os"
	"strings"
)

// ProxyConfig holds the per-scheme proxy URLs discovered from the
// environment, a selection-by-URL dictionary populated from
// HTTP_PROXY/HTTPS_PROXY/ALL_PROXY, minus any host matched by NO_PROXY.
type ProxyConfig struct {
	ByKey   map[string]string
	NoProxy []string
}

// ProxiesFromEnvironment reads HTTP_PROXY, HTTPS_PROXY, ALL_PROXY and their
// lowercase forms (lowercase wins when both are set, matching curl/requests
// convention), plus NO_PROXY/no_proxy.
func ProxiesFromEnvironment() ProxyConfig {
	cfg := ProxyConfig{ByKey: map[string]string{}}
	set := func(key, upper, lower string) {
		if v := os.Getenv(lower); v != "" {
			cfg.ByKey[key] = v
			return
		}
		if v := os.Getenv(upper); v != "" {
			cfg.ByKey[key] = v
		}
	}
	set("http", "HTTP_PROXY", "http_proxy")
	set("https", "HTTPS_PROXY", "https_proxy")
	set("all", "ALL_PROXY", "all_proxy")

	noProxy := os.Getenv("no_proxy")
	if noProxy == "" {
		noProxy = os.Getenv("NO_PROXY")
	}
	for _, h := range strings.Split(noProxy, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			cfg.NoProxy = append(cfg.NoProxy, strings.ToLower(h))
		}
	}
	return cfg
}

// ProxyFor resolves the proxy URL for (scheme, host), trying the lookup
// keys in priority order, skipping any host matched by
// NO_PROXY. An empty string means "use the direct transport".
func (c ProxyConfig) ProxyFor(scheme, host string) string {
	for _, suffix := range c.NoProxy {
		if suffix == "*" || host == suffix || strings.HasSuffix(host, "."+suffix) {
			return ""
		}
	}
	if v, ok := c.ByKey[scheme]; ok {
		return v
	}
	return c.ByKey["all"]
}
