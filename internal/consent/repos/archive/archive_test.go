package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func result(ts time.Time, names ...string) domain.ScanResult {
	var cookies []domain.ClassifiedCookie
	for _, n := range names {
		cookies = append(cookies, domain.ClassifiedCookie{
			ScannedCookie:  domain.ScannedCookie{Name: n, FoundAt: ts},
			Classification: domain.ClassificationUnknown,
			Suggestion:     "investigate",
		})
	}
	return domain.NewScanResult(ts, cookies)
}

func TestStore_PutGet(t *testing.T) {
	s := openTemp(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := result(ts, "mystery")

	id, err := s.Put(r)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, ok, err := s.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, r.TotalFound, got.TotalFound)
	assert.Equal(t, r.Summary, got.Summary)
	assert.Equal(t, "mystery", got.Unknown[0].Name)
	assert.Equal(t, domain.ClassificationUnknown, got.Unknown[0].Classification)

	_, ok, err = s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// inserted out of time order, plus two scans sharing a timestamp
	for _, r := range []domain.ScanResult{
		result(base.Add(2*time.Hour), "c"),
		result(base, "a"),
		result(base.Add(time.Hour), "b1"),
		result(base.Add(time.Hour), "b2"),
	} {
		_, err := s.Put(r)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, s.Len())

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	var order []string
	for _, rec := range all {
		order = append(order, rec.Result.Unknown[0].Name)
	}
	assert.Equal(t, []string{"c", "b2", "b1", "a"}, order)

	top, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, all[0].ID, top[0].ID)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scans.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Put(result(time.Now(), "x"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, ok, err := s.Get(id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKey_Ordering(t *testing.T) {
	early := key(time.Unix(1, 0), 99)
	late := key(time.Unix(2, 0), 1)
	assert.Less(t, early, late)
	assert.Equal(t, key(time.Unix(-5, 0), 1), key(time.Unix(0, 0), 1))
}
