// Package catalog resolves script URLs and cookie names to the third-party
// service presets that produce them.
//
// Lookup always walks presets in catalog order and returns the first match.
// Presets are not guaranteed to be disjoint, so reordering a catalog can
// change classification outcomes.
package catalog

import (
	"github.com/haukened/cookiegate/internal/consent/common/pattern"
	"github.com/haukened/cookiegate/internal/consent/common/utils"
	"github.com/haukened/cookiegate/internal/consent/domain"
)

// ResolveByDomain returns the first preset with a domain pattern matching hostname.
func ResolveByDomain(hostname string, presets []domain.ServicePreset) (domain.DomainMatch, bool) {
	host := utils.CanonicalHostName(hostname)
	if host == "" {
		return domain.DomainMatch{}, false
	}
	for _, p := range presets {
		for _, d := range p.Domains {
			if pattern.MatchDomain(host, d) {
				return domain.DomainMatch{Preset: p, Pattern: d}, true
			}
		}
	}
	return domain.DomainMatch{}, false
}

// ResolveByURL resolves the host of rawURL. URLs that cannot be parsed or
// carry no host fail closed: no match and no error.
func ResolveByURL(rawURL string, presets []domain.ServicePreset) (domain.DomainMatch, bool) {
	host, ok := utils.HostnameFromURL(rawURL)
	if !ok {
		return domain.DomainMatch{}, false
	}
	return ResolveByDomain(host, presets)
}

// ResolveByCookie returns the first preset with a cookie pattern matching name.
func ResolveByCookie(name string, presets []domain.ServicePreset) (domain.CookieMatch, bool) {
	if name == "" {
		return domain.CookieMatch{}, false
	}
	for _, p := range presets {
		for _, cp := range p.CookiePatterns {
			if pattern.Match(name, cp) {
				return domain.CookieMatch{Preset: p, Pattern: cp}, true
			}
		}
	}
	return domain.CookieMatch{}, false
}

// List is an unindexed catalog: a plain slice resolved by linear scan.
type List []domain.ServicePreset

func (l List) ResolveByDomain(hostname string) (domain.DomainMatch, bool) {
	return ResolveByDomain(hostname, l)
}

func (l List) ResolveByURL(rawURL string) (domain.DomainMatch, bool) {
	return ResolveByURL(rawURL, l)
}

func (l List) ResolveByCookie(name string) (domain.CookieMatch, bool) {
	return ResolveByCookie(name, l)
}

// Presets returns the underlying presets.
func (l List) Presets() []domain.ServicePreset { return l }
