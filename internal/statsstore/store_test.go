package statsstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordQuery_AccumulatesCount(t *testing.T) {
	s := openTestStore(t)

	s.RecordQuery("alidns-doh", "success")
	s.RecordQuery("alidns-doh", "success")
	s.RecordQuery("alidns-doh", "upstream-failure")

	totals, err := s.Totals()
	require.NoError(t, err)
	require.Len(t, totals, 2)

	byOutcome := map[string]int64{}
	for _, c := range totals {
		assert.Equal(t, "alidns-doh", c.Group)
		byOutcome[c.Outcome] = c.Count
	}
	assert.Equal(t, int64(2), byOutcome["success"])
	assert.Equal(t, int64(1), byOutcome["upstream-failure"])
}

func TestStore_Totals_EmptyStoreReturnsNoRows(t *testing.T) {
	s := openTestStore(t)

	totals, err := s.Totals()
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestStore_RecordQuery_SeparatesGroups(t *testing.T) {
	s := openTestStore(t)

	s.RecordQuery("alidns-doh", "success")
	s.RecordQuery("cloudflare-doh", "success")

	totals, err := s.Totals()
	require.NoError(t, err)
	require.Len(t, totals, 2)
}
