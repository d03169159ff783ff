package fetchcache

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepulse/internal/shared/testutil"
	"gamepulse/internal/source"
)

func sampleEntry(key string, value float64) Entry {
	return Entry{
		Key: key,
		Rows: []source.RawRow{
			{
				NativeID: "app-1",
				Platform: "ios",
				Date:     time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				Metric:   source.MetricRevenue,
				Value:    value,
			},
		},
		FetchedAt: time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store, err := NewMemoryStore(4)
	require.NoError(t, err)

	_, ok := store.Get("missing")
	assert.False(t, ok)

	entry := sampleEntry("k1", 100)
	require.NoError(t, store.Put("k1", entry))

	got, ok := store.Get("k1")
	require.True(t, ok)
	assert.Equal(t, entry.Key, got.Key)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, 100.0, got.Rows[0].Value)
}

func TestMemoryStoreCapacityValidation(t *testing.T) {
	_, err := NewMemoryStore(0)
	assert.Error(t, err)
	_, err = NewMemoryStore(-3)
	assert.Error(t, err)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store, err := NewMemoryStore(2)
	require.NoError(t, err)

	require.NoError(t, store.Put("k1", sampleEntry("k1", 1)))
	require.NoError(t, store.Put("k2", sampleEntry("k2", 2)))

	// Touch k1 so k2 becomes the eviction candidate.
	_, ok := store.Get("k1")
	require.True(t, ok)

	require.NoError(t, store.Put("k3", sampleEntry("k3", 3)))
	assert.Equal(t, 2, store.Len())

	_, ok = store.Get("k2")
	assert.False(t, ok, "least recently used entry should have been evicted")
	_, ok = store.Get("k1")
	assert.True(t, ok)
	_, ok = store.Get("k3")
	assert.True(t, ok)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger, _ := testutil.NewTestLogger(t)
	store, err := NewFileStore(dir, logger)
	require.NoError(t, err)

	_, ok := store.Get("missing")
	assert.False(t, ok)

	entry := sampleEntry("abc123", 250)
	require.NoError(t, store.Put("abc123", entry))

	got, ok := store.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, "abc123", got.Key)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, 250.0, got.Rows[0].Value)
	assert.True(t, entry.FetchedAt.Equal(got.FetchedAt))
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	logger, _ := testutil.NewTestLogger(t)

	store, err := NewFileStore(dir, logger)
	require.NoError(t, err)
	require.NoError(t, store.Put("persist", sampleEntry("persist", 42)))

	reopened, err := NewFileStore(dir, logger)
	require.NoError(t, err)
	got, ok := reopened.Get("persist")
	require.True(t, ok)
	assert.Equal(t, 42.0, got.Rows[0].Value)
}

func TestFileStoreDropsCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	logger, handler := testutil.NewTestLogger(t)
	store, err := NewFileStore(dir, logger)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	_, ok := store.Get("bad")
	assert.False(t, ok)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "dropping corrupt cache file")

	// Overwriting the corrupt file works afterwards.
	require.NoError(t, store.Put("bad", sampleEntry("bad", 7)))
	_, ok = store.Get("bad")
	assert.True(t, ok)
}
