package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

func findIssue(issues []Issue, id, fragment string) (Issue, bool) {
	for _, i := range issues {
		if i.PresetID == id && strings.Contains(i.Message, fragment) {
			return i, true
		}
	}
	return Issue{}, false
}

func TestValidate_CleanCatalog(t *testing.T) {
	issues := Validate(testPresets())
	assert.Empty(t, issues)
	assert.False(t, HasErrors(issues))
}

func TestValidate_CatchAllCookiePattern(t *testing.T) {
	presets := append(testPresets(), domain.ServicePreset{
		ID: "greedy", Name: "Greedy", Category: domain.CategoryMarketing, CookiePatterns: []string{"*"},
	})
	issues := Validate(presets)
	i, ok := findIssue(issues, "greedy", "matches every cookie")
	require.True(t, ok, "%v", issues)
	assert.Equal(t, SeverityWarning, i.Severity)
	assert.False(t, HasErrors(issues))
}

func TestValidate_PublicSuffixDomain(t *testing.T) {
	presets := append(testPresets(), domain.ServicePreset{
		ID: "wide", Name: "Wide", Category: domain.CategoryMarketing, Domains: []string{"*.co.uk"},
	})
	_, ok := findIssue(Validate(presets), "wide", "public suffix")
	assert.True(t, ok)
}

func TestValidate_Overlaps(t *testing.T) {
	presets := append(testPresets(),
		domain.ServicePreset{ID: "ga-clone", Name: "Clone", Category: domain.CategoryMarketing,
			Domains: []string{"google-analytics.com"}, CookiePatterns: []string{"_GA"}},
	)
	issues := Validate(presets)
	_, ok := findIssue(issues, "ga-clone", `domain "google-analytics.com" overlaps preset "google-analytics"`)
	assert.True(t, ok, "%v", issues)
	_, ok = findIssue(issues, "ga-clone", `cookie pattern "_GA" overlaps preset "google-analytics"`)
	assert.True(t, ok, "%v", issues)
}

func TestValidate_Errors(t *testing.T) {
	presets := append(testPresets(),
		domain.ServicePreset{ID: "hotjar", Name: "Dup", Category: domain.CategoryAnalytics},
		domain.ServicePreset{ID: "bad", Name: "Bad", Category: "ads"},
		domain.ServicePreset{ID: "", Name: "Nameless", Category: domain.CategoryAnalytics},
	)
	issues := Validate(presets)
	assert.True(t, HasErrors(issues))

	dup, ok := findIssue(issues, "hotjar", "duplicate preset id")
	require.True(t, ok)
	assert.Equal(t, SeverityError, dup.Severity)
	_, ok = findIssue(issues, "bad", "invalid preset")
	assert.True(t, ok)
	_, ok = findIssue(issues, "", "invalid preset")
	assert.True(t, ok)
}

func TestIssue_String(t *testing.T) {
	i := Issue{Severity: SeverityError, PresetID: "x", Message: "boom"}
	assert.Equal(t, "error: x: boom", i.String())
	assert.Equal(t, "warning", SeverityWarning.String())
}
