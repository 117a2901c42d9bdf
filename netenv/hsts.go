package netenv

import "strings"

// hstsPreload is a small static seed of the public HSTS preload list, used
// to decide whether a plain-http request to a known host should be
// upgraded to https before it's ever sent. It is read-only and built once
// at package init, deliberately avoiding a mutable shared cache.
var hstsPreload = map[string]bool{
	"google.com":        true,
	"www.google.com":    true,
	"github.com":        true,
	"www.github.com":    true,
	"gmail.com":         true,
	"paypal.com":        true,
}

// IsHSTSPreloaded reports whether host is on relay's static HSTS preload
// seed. A real deployment would load the full Chromium preload list at
// build time; this seed only covers the common well-known hosts.
func IsHSTSPreloaded(host string) bool {
	return hstsPreload[strings.ToLower(host)]
}
