// Package scanner audits a cookie snapshot against the service catalog.
//
// Every cookie that survives the ignore lists lands in exactly one bucket:
// declared (its service is in the site's configuration), known but not
// declared (the catalog knows it, the site does not list it) or unknown.
package scanner

import (
	"fmt"
	"strings"

	"github.com/haukened/cookiegate/internal/consent/common/clock"
	"github.com/haukened/cookiegate/internal/consent/common/log"
	"github.com/haukened/cookiegate/internal/consent/common/pattern"
	"github.com/haukened/cookiegate/internal/consent/domain"
)

// DefaultMaxValueLength bounds cookie values in results.
const DefaultMaxValueLength = 20

const truncationMarker = "..."

// CookieSource yields the current cookie snapshot.
type CookieSource interface {
	Cookies() []domain.RawCookie
}

// Resolver maps a cookie name to the first catalog service claiming it.
type Resolver interface {
	ResolveByCookie(name string) (domain.CookieMatch, bool)
}

// Options tunes a single scan.
type Options struct {
	MaxValueLength int
	// IgnoreNames are added to the built-in ignore list. Matching is exact and case-insensitive.
	IgnoreNames []string
	// IgnorePatterns are added to the built-in wildcard ignore patterns.
	IgnorePatterns []string
}

// Session, CSRF and framework cookies that carry no tracking purpose.
var builtinIgnoreNames = []string{
	"PHPSESSID",
	"JSESSIONID",
	"ASP.NET_SessionId",
	"__RequestVerificationToken",
	"csrftoken",
	"csrf_token",
	"_csrf",
	"XSRF-TOKEN",
	"sessionid",
	"session",
	"_session_id",
	"connect.sid",
	"laravel_session",
	"ci_session",
	"CFID",
	"CFTOKEN",
	"wordpress_test_cookie",
}

var builtinIgnorePatterns = []string{
	"wp-settings-*",
	"wordpress_logged_in_*",
	"wordpress_sec_*",
	"ASPSESSIONID*",
	".AspNetCore.*",
}

type ScannerOptions struct {
	Source CookieSource
	Clock  clock.Clock
	Logger log.Logger
}

// Scanner classifies the cookies of one source.
type Scanner struct {
	source CookieSource
	clock  clock.Clock
	logger log.Logger
}

func NewScanner(opts ScannerOptions) *Scanner {
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = log.Component(logger, "scanner")
	return &Scanner{source: opts.Source, clock: clk, logger: logger}
}

// Scan reads the source and classifies each cookie against full. A cookie
// whose service is in declared (compared by id) is declared. A missing
// source or catalog never fails: every cookie is then unknown, and no
// cookies means a compliant result.
func (s *Scanner) Scan(declared []domain.ServicePreset, full Resolver, opts Options) domain.ScanResult {
	now := s.clock.Now()
	if s.source == nil {
		return domain.NewScanResult(now, nil)
	}

	maxLen := opts.MaxValueLength
	if maxLen <= 0 {
		maxLen = DefaultMaxValueLength
	}
	ignore := newIgnoreSet(opts)
	declaredIDs := make(map[string]struct{}, len(declared))
	for _, p := range declared {
		declaredIDs[p.ID] = struct{}{}
	}

	raw := s.source.Cookies()
	out := make([]domain.ClassifiedCookie, 0, len(raw))
	ignored := 0
	for _, rc := range raw {
		if ignore.has(rc.Name) {
			ignored++
			continue
		}
		sc := domain.ScannedCookie{
			Name:      rc.Name,
			Value:     truncate(rc.Value, maxLen),
			SizeBytes: len(rc.Name) + len(rc.Value),
			FoundAt:   now,
		}
		out = append(out, classify(sc, declaredIDs, full))
	}

	result := domain.NewScanResult(now, out)
	s.logger.Debug(map[string]any{
		"total":              result.TotalFound,
		"ignored":            ignored,
		"declared":           result.Summary.Declared,
		"known_not_declared": result.Summary.KnownNotDeclared,
		"unknown":            result.Summary.Unknown,
	}, "cookie_scan_complete")
	return result
}

// QuickCheck runs a scan and keeps only the verdict.
func (s *Scanner) QuickCheck(declared []domain.ServicePreset, full Resolver, opts Options) domain.Compliance {
	r := s.Scan(declared, full, opts)
	return domain.Compliance{Compliant: r.Summary.Compliant, Issues: r.Summary.Issues}
}

func classify(sc domain.ScannedCookie, declaredIDs map[string]struct{}, full Resolver) domain.ClassifiedCookie {
	cc := domain.ClassifiedCookie{ScannedCookie: sc}
	var (
		m  domain.CookieMatch
		ok bool
	)
	if full != nil {
		m, ok = full.ResolveByCookie(sc.Name)
	}
	if !ok {
		cc.Classification = domain.ClassificationUnknown
		cc.Suggestion = unknownSuggestion(sc.Name)
		return cc
	}

	cc.ServiceID = m.Preset.ID
	cc.ServiceName = m.Preset.Name
	cc.Category = m.Preset.Category
	cc.MatchedPattern = m.Pattern
	if _, ok := declaredIDs[m.Preset.ID]; ok {
		cc.Classification = domain.ClassificationDeclared
		return cc
	}
	cc.Classification = domain.ClassificationKnown
	cc.Suggestion = fmt.Sprintf("Add the service %q (%s) to your configuration under the %s category.",
		m.Preset.Name, m.Preset.ID, m.Preset.Category)
	return cc
}

func unknownSuggestion(name string) string {
	return fmt.Sprintf("Investigate which script sets %q, then declare its service or remove the script.", name)
}

// truncate cuts v to limit characters and marks the cut.
func truncate(v string, limit int) string {
	n := 0
	for i := range v {
		if n == limit {
			return v[:i] + truncationMarker
		}
		n++
	}
	return v
}

type ignoreSet struct {
	names    map[string]struct{}
	patterns []string
}

func newIgnoreSet(opts Options) ignoreSet {
	set := ignoreSet{names: make(map[string]struct{}, len(builtinIgnoreNames)+len(opts.IgnoreNames))}
	for _, list := range [][]string{builtinIgnoreNames, opts.IgnoreNames} {
		for _, n := range list {
			if n = strings.TrimSpace(n); n != "" {
				set.names[strings.ToLower(n)] = struct{}{}
			}
		}
	}
	set.patterns = append(set.patterns, builtinIgnorePatterns...)
	set.patterns = append(set.patterns, opts.IgnorePatterns...)
	return set
}

func (s ignoreSet) has(name string) bool {
	if _, ok := s.names[strings.ToLower(name)]; ok {
		return true
	}
	for _, p := range s.patterns {
		if p != "" && pattern.Match(name, p) {
			return true
		}
	}
	return false
}
