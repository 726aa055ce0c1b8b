package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classified(name string, c Classification) ClassifiedCookie {
	return ClassifiedCookie{ScannedCookie: ScannedCookie{Name: name}, Classification: c}
}

func TestNewScanResult_Buckets(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewScanResult(ts, []ClassifiedCookie{
		classified("_ga", ClassificationDeclared),
		classified("_hjid", ClassificationKnown),
		classified("mystery", ClassificationUnknown),
		classified("_gid", ClassificationDeclared),
	})

	assert.Equal(t, ts, r.Timestamp)
	assert.Equal(t, 4, r.TotalFound)
	assert.Len(t, r.Declared, 2)
	assert.Equal(t, "_ga", r.Declared[0].Name)
	assert.Equal(t, "_gid", r.Declared[1].Name)
	assert.Len(t, r.KnownNotDeclared, 1)
	assert.Len(t, r.Unknown, 1)
	assert.Equal(t, 2, r.Summary.Issues)
	assert.False(t, r.Summary.Compliant)

	all := r.All()
	require.Len(t, all, 4)
	assert.Equal(t, []string{"_ga", "_gid", "_hjid", "mystery"},
		[]string{all[0].Name, all[1].Name, all[2].Name, all[3].Name})
}

func TestNewScanResult_DeclaredOnlyIsCompliant(t *testing.T) {
	r := NewScanResult(time.Now(), []ClassifiedCookie{
		classified("_ga", ClassificationDeclared),
		classified("_gid", ClassificationDeclared),
	})
	assert.True(t, r.Summary.Compliant)
	assert.Equal(t, 0, r.Summary.Issues)
}

func TestNewScanResult_EmptyBucketsEncodeAsArrays(t *testing.T) {
	r := NewScanResult(time.Now(), nil)
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	for _, key := range []string{"declared", "knownNotDeclared", "unknown"} {
		assert.IsType(t, []any{}, decoded[key], key)
	}
	assert.True(t, r.Summary.Compliant)
}

func TestClassification_String(t *testing.T) {
	assert.Equal(t, "unknown", ClassificationUnknown.String())
	assert.Equal(t, "declared", ClassificationDeclared.String())
	assert.Equal(t, "known_not_declared", ClassificationKnown.String())
	assert.Equal(t, "Classification(9)", Classification(9).String())
}

func TestClassification_TextRoundTrip(t *testing.T) {
	for _, c := range []Classification{ClassificationUnknown, ClassificationDeclared, ClassificationKnown} {
		b, err := c.MarshalText()
		require.NoError(t, err)
		var got Classification
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, c, got)
	}
	var c Classification
	assert.Error(t, c.UnmarshalText([]byte("maybe")))
}
