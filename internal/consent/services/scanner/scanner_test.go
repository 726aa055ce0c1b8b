package scanner

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/cookiegate/internal/consent/common/clock"
	"github.com/haukened/cookiegate/internal/consent/common/log"
	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/repos/catalog"
)

type staticSource []domain.RawCookie

func (s staticSource) Cookies() []domain.RawCookie { return s }

var (
	ga = domain.ServicePreset{
		ID: "google-analytics", Name: "Google Analytics", Category: domain.CategoryAnalytics,
		CookiePatterns: []string{"_ga", "_ga_*", "_gid"},
	}
	hotjar = domain.ServicePreset{
		ID: "hotjar", Name: "Hotjar", Category: domain.CategoryAnalytics,
		CookiePatterns: []string{"_hjid", "_hjSession*"},
	}
	fb = domain.ServicePreset{
		ID: "facebook-pixel", Name: "Facebook Pixel", Category: domain.CategoryMarketing,
		CookiePatterns: []string{"_fbp", "fr"},
	}
	full = catalog.List{ga, hotjar, fb}
)

func newTestScanner(src CookieSource) (*Scanner, *clock.MockClock) {
	clk := &clock.MockClock{CurrentTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewScanner(ScannerOptions{Source: src, Clock: clk, Logger: log.NewNoopLogger()}), clk
}

func TestScan_DeclaredOnlyIsCompliant(t *testing.T) {
	s, clk := newTestScanner(staticSource{
		{Name: "_ga", Value: "GA1.2.111.222"},
		{Name: "_ga_ABC123", Value: "GS1.1"},
		{Name: "_gid", Value: "GA1.2.333"},
	})
	r := s.Scan([]domain.ServicePreset{ga}, full, Options{})

	assert.Equal(t, 3, r.TotalFound)
	assert.Len(t, r.Declared, 3)
	assert.True(t, r.Summary.Compliant)
	assert.Equal(t, 0, r.Summary.Issues)
	assert.Equal(t, clk.CurrentTime, r.Timestamp)
	for _, c := range r.Declared {
		assert.Equal(t, "google-analytics", c.ServiceID)
		assert.Empty(t, c.Suggestion)
		assert.Equal(t, clk.CurrentTime, c.FoundAt)
	}
	assert.Equal(t, "_ga_*", r.Declared[1].MatchedPattern)
}

func TestScan_KnownNotDeclared(t *testing.T) {
	s, _ := newTestScanner(staticSource{
		{Name: "_ga", Value: "GA1"},
		{Name: "_hjSessionUser_2938475", Value: "eyJpZCI6"},
	})
	r := s.Scan([]domain.ServicePreset{ga}, full, Options{})

	require.Len(t, r.KnownNotDeclared, 1)
	c := r.KnownNotDeclared[0]
	assert.Equal(t, domain.ClassificationKnown, c.Classification)
	assert.Equal(t, "hotjar", c.ServiceID)
	assert.Equal(t, "Hotjar", c.ServiceName)
	assert.Equal(t, "_hjSession*", c.MatchedPattern)
	assert.Equal(t, domain.CategoryAnalytics, c.Category)
	assert.Contains(t, c.Suggestion, "hotjar")
	assert.Equal(t, 1, r.Summary.Issues)
	assert.False(t, r.Summary.Compliant)
}

func TestScan_UnknownCookie(t *testing.T) {
	s, _ := newTestScanner(staticSource{{Name: "mystery_tracker", Value: "1"}})
	r := s.Scan(nil, full, Options{})

	require.Len(t, r.Unknown, 1)
	c := r.Unknown[0]
	assert.Equal(t, domain.ClassificationUnknown, c.Classification)
	assert.False(t, c.HasService())
	assert.NotEmpty(t, c.Suggestion)
	assert.Contains(t, c.Suggestion, "mystery_tracker")
	assert.False(t, r.Summary.Compliant)
}

func TestScan_Ignores(t *testing.T) {
	s, _ := newTestScanner(staticSource{
		{Name: "PHPSESSID", Value: "abc"},
		{Name: "phpsessid", Value: "abc"},
		{Name: "XSRF-TOKEN", Value: "t"},
		{Name: "wp-settings-1", Value: "x"},
		{Name: "WP-SETTINGS-time-1", Value: "x"},
		{Name: "My_Session", Value: "m"},
		{Name: "debug_panel", Value: "1"},
		{Name: "_fbp", Value: "fb.1"},
	})
	r := s.Scan(nil, full, Options{
		IgnoreNames:    []string{"my_session", " "},
		IgnorePatterns: []string{"debug_*"},
	})

	assert.Equal(t, 1, r.TotalFound)
	require.Len(t, r.KnownNotDeclared, 1)
	assert.Equal(t, "_fbp", r.KnownNotDeclared[0].Name)
}

func TestScan_Truncation(t *testing.T) {
	long := strings.Repeat("a", 30)
	s, _ := newTestScanner(staticSource{
		{Name: "_ga", Value: long},
		{Name: "_gid", Value: "short"},
		{Name: "_hjid", Value: "ééééééé"},
	})

	r := s.Scan(nil, full, Options{})
	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, strings.Repeat("a", 20)+"...", all[0].Value)
	assert.Equal(t, len("_ga")+30, all[0].SizeBytes)
	assert.Equal(t, "short", all[1].Value)

	r = s.Scan(nil, full, Options{MaxValueLength: 3})
	all = r.All()
	assert.Equal(t, "aaa...", all[0].Value)
	assert.Equal(t, "ééé...", all[2].Value, "truncation counts characters, not bytes")
	assert.Equal(t, len("_hjid")+len("ééééééé"), all[2].SizeBytes)
}

func TestScan_Deterministic(t *testing.T) {
	s, clk := newTestScanner(staticSource{
		{Name: "_ga", Value: "1"},
		{Name: "fr", Value: "2"},
		{Name: "zzz", Value: "3"},
	})
	first := s.Scan([]domain.ServicePreset{ga}, full, Options{})
	clk.Advance(time.Minute)
	second := s.Scan([]domain.ServicePreset{ga}, full, Options{})

	assert.NotEqual(t, first.Timestamp, second.Timestamp)
	second.Timestamp = first.Timestamp
	for _, bucket := range []*[]domain.ClassifiedCookie{&second.Declared, &second.KnownNotDeclared, &second.Unknown} {
		for i := range *bucket {
			(*bucket)[i].FoundAt = first.Timestamp
		}
	}
	assert.Equal(t, first, second)
}

func TestScan_MissingSourceOrCatalog(t *testing.T) {
	s, _ := newTestScanner(nil)
	r := s.Scan(nil, full, Options{})
	assert.Equal(t, 0, r.TotalFound)
	assert.True(t, r.Summary.Compliant)
	assert.NotNil(t, r.Declared)

	s, _ = newTestScanner(staticSource{{Name: "_ga", Value: "1"}})
	r = s.Scan(nil, nil, Options{})
	assert.Len(t, r.Unknown, 1)
}

func TestQuickCheck(t *testing.T) {
	s, _ := newTestScanner(staticSource{
		{Name: "_ga", Value: "1"},
		{Name: "_fbp", Value: "2"},
		{Name: "unknown_one", Value: "3"},
	})
	assert.Equal(t, domain.Compliance{Compliant: false, Issues: 2}, s.QuickCheck([]domain.ServicePreset{ga}, full, Options{}))
	assert.Equal(t, domain.Compliance{Compliant: false, Issues: 1}, s.QuickCheck([]domain.ServicePreset{ga, fb}, full, Options{}))
}

func TestScan_IndexedCatalogAgreesWithList(t *testing.T) {
	idx, err := catalog.New(full, catalog.Options{CacheSize: 16})
	require.NoError(t, err)
	src := staticSource{{Name: "_hjid", Value: "1"}, {Name: "_ga_X", Value: "2"}, {Name: "nope", Value: "3"}}
	s, _ := newTestScanner(src)
	assert.Equal(t, s.Scan(nil, full, Options{}), s.Scan(nil, idx, Options{}))
}
