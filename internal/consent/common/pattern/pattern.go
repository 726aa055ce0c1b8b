// Package pattern implements the wildcard matching used for cookie names and
// script domains. A pattern without "*" is compared literally; a pattern with
// "*" is compiled into an anchored, case-insensitive regular expression in
// which "*" stands for any run of characters.
package pattern

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/cookiegate/internal/consent/common/utils"
)

// Wildcard is the only metacharacter understood in patterns.
const Wildcard = "*"

// DefaultCacheSize bounds the number of compiled patterns kept by the
// package-level matcher.
const DefaultCacheSize = 1024

var defaultMatcher = mustMatcher(DefaultCacheSize)

// Matcher matches candidates against patterns, memoising compiled wildcards.
// It is safe for concurrent use.
type Matcher struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

// NewMatcher returns a Matcher caching up to size compiled patterns.
// A size <= 0 disables the cache.
func NewMatcher(size int) (*Matcher, error) {
	if size <= 0 {
		return &Matcher{}, nil
	}
	cache, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		return nil, err
	}
	return &Matcher{cache: cache}, nil
}

func mustMatcher(size int) *Matcher {
	m, err := NewMatcher(size)
	if err != nil {
		panic(err)
	}
	return m
}

// HasWildcard reports whether pattern contains "*".
func HasWildcard(pattern string) bool {
	return strings.Contains(pattern, Wildcard)
}

// IsCatchAll reports whether pattern matches every candidate, e.g. "*" or "**".
func IsCatchAll(pattern string) bool {
	p := strings.TrimSpace(pattern)
	return p != "" && strings.Trim(p, Wildcard) == ""
}

// Match matches a cookie name (or value) against pattern using the package
// matcher.
func Match(candidate, pattern string) bool {
	return defaultMatcher.Match(candidate, pattern)
}

// MatchDomain matches a host name against a domain pattern using the
// package matcher.
func MatchDomain(host, pattern string) bool {
	return defaultMatcher.MatchDomain(host, pattern)
}

// Match reports whether candidate matches pattern. Literal patterns are
// exact and case-sensitive; wildcard patterns are anchored and
// case-insensitive.
func (m *Matcher) Match(candidate, pattern string) bool {
	if !HasWildcard(pattern) {
		return candidate == pattern
	}
	return m.compile(pattern).MatchString(candidate)
}

// MatchDomain reports whether host matches a domain pattern.
//
//	"google.com"   matches google.com and any subdomain of it
//	"*.google.com" matches google.com and any subdomain of it
//	"*google*"     matches any host containing "google"
//
// Both sides are canonicalised first, so the comparison ignores case and
// trailing dots.
func (m *Matcher) MatchDomain(host, pattern string) bool {
	host = utils.CanonicalHostName(host)
	p := utils.CanonicalHostName(pattern)
	if host == "" || p == "" {
		return false
	}
	if !HasWildcard(p) {
		return host == p || strings.HasSuffix(host, "."+p)
	}
	if base, ok := strings.CutPrefix(p, "*."); ok && base != "" {
		if HasWildcard(base) {
			if m.compile(base).MatchString(host) {
				return true
			}
		} else if host == base {
			return true
		}
	}
	return m.compile(p).MatchString(host)
}

// compile turns a wildcard pattern into ^...$ with every other character
// quoted.
func (m *Matcher) compile(pattern string) *regexp.Regexp {
	if m.cache != nil {
		if re, ok := m.cache.Get(pattern); ok {
			return re
		}
	}
	parts := strings.Split(pattern, Wildcard)
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re := regexp.MustCompile("(?is)^" + strings.Join(parts, ".*") + "$")
	if m.cache != nil {
		m.cache.Add(pattern, re)
	}
	return re
}
