package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"analytics", CategoryAnalytics, false},
		{" Marketing ", CategoryMarketing, false},
		{"NECESSARY", CategoryNecessary, false},
		{"personalization", CategoryPersonalization, false},
		{"functional", CategoryFunctional, false},
		{"statistics", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestCategory_Valid(t *testing.T) {
	for _, c := range AllCategories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("ads").Valid())
	assert.False(t, Category("").Valid())
}

func TestConsentState_GrantedCanonicalOrder(t *testing.T) {
	s := ConsentState{
		CategoryMarketing:  true,
		CategoryAnalytics:  true,
		CategoryFunctional: false,
	}
	assert.Equal(t, []Category{CategoryAnalytics, CategoryMarketing}, s.Granted())
}

func TestParseConsentState(t *testing.T) {
	s, err := ParseConsentState([]string{"analytics", "", "Marketing"})
	require.NoError(t, err)
	assert.True(t, s[CategoryNecessary], "necessary is always granted")
	assert.True(t, s[CategoryAnalytics])
	assert.True(t, s[CategoryMarketing])
	assert.False(t, s[CategoryFunctional])
	assert.True(t, s.Allows(CategoryAnalytics))
	assert.False(t, s.Allows(CategoryPersonalization))

	_, err = ParseConsentState([]string{"bogus"})
	assert.Error(t, err)
}
