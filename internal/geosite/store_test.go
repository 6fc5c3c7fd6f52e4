package geosite

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func buildTestBlob(t *testing.T) []byte {
	t.Helper()
	cn := encodeGeoSite(t, "CN", [][]byte{
		encodeDomain(t, RootDomain, "cn"),
	})
	ads := encodeGeoSite(t, "category-ads", [][]byte{
		encodeDomain(t, Plain, "doubleclick"),
		encodeDomain(t, Full, "ads.example.com"),
	})
	return encodeGeoSiteList([][]byte{cn, ads})
}

func TestStore_Contains(t *testing.T) {
	store, err := Load(buildTestBlob(t), testLogger())
	require.NoError(t, err)

	assert.True(t, store.Contains("foo.cn", []string{"cn"}))
	assert.True(t, store.Contains("cn", []string{"CN"}))
	assert.False(t, store.Contains("unicorn", []string{"cn"}))
	assert.True(t, store.Contains("ad.doubleclick.net", []string{"category-ads"}))
	assert.True(t, store.Contains("ads.example.com", []string{"category-ads"}))
	assert.False(t, store.Contains("example.com", []string{"category-ads"}))
}

func TestStore_Contains_EvaluatesCategoriesInOrder(t *testing.T) {
	store, err := Load(buildTestBlob(t), testLogger())
	require.NoError(t, err)

	// First category doesn't match, second does -> still true.
	assert.True(t, store.Contains("ads.example.com", []string{"cn", "category-ads"}))
}

func TestStore_Contains_MissingCategoryIsNoMatchNotError(t *testing.T) {
	store, err := Load(buildTestBlob(t), testLogger())
	require.NoError(t, err)

	assert.False(t, store.Contains("example.com", []string{"does-not-exist"}))
	assert.Equal(t, 2, store.CategoryCount())
}

func TestStore_Stats(t *testing.T) {
	store, err := Load(buildTestBlob(t), testLogger())
	require.NoError(t, err)

	store.Contains("foo.cn", []string{"cn"})
	store.Contains("nomatch.example", []string{"cn"})

	stats := store.Stats()
	assert.Equal(t, uint64(2), stats.Lookups)
	assert.Equal(t, uint64(1), stats.Hits)
}
