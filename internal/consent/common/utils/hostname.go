package utils

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalHostName returns a host name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot
func CanonicalHostName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// HostnameFromURL extracts the canonical host of an absolute or
// protocol-relative URL. ok is false for anything that has no host.
func HostnameFromURL(raw string) (host string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host = CanonicalHostName(u.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}

// GetApexDomain returns the registrable domain (eTLD+1) for name, or the
// canonical name itself when it cannot be determined.
func GetApexDomain(name string) string {
	name = CanonicalHostName(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}

// IsPublicSuffix reports whether name is itself a public suffix such as
// "com" or "co.uk".
func IsPublicSuffix(name string) bool {
	name = CanonicalHostName(name)
	if name == "" {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(name)
	return suffix == name
}
