package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 9, 10, 30, 0, 123, time.UTC)

	entry := &Entry{
		ID:          "req-1",
		Source:      "face.jpg",
		Label:       "smile",
		Probability: 0.875,
		Smile:       true,
		ImageSHA1:   "da39a3ee",
		ModelDigest: "model-1",
		Preview:     []byte{0xff, 0xd8, 0xff},
		CreatedAt:   created,
	}
	require.NoError(t, store.Save(ctx, entry))

	got, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "face.jpg", got.Source)
	assert.Equal(t, "smile", got.Label)
	assert.InDelta(t, 0.875, got.Probability, 1e-6)
	assert.True(t, got.Smile)
	assert.Equal(t, "da39a3ee", got.ImageSHA1)
	assert.Equal(t, "model-1", got.ModelDigest)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, got.Preview)
	assert.True(t, got.CreatedAt.Equal(created), "got %v", got.CreatedAt)
}

func TestGetMissing(t *testing.T) {
	_, err := openStore(t).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Entry{ID: "a", Label: "no-smile"}))
	assert.Error(t, store.Save(ctx, &Entry{ID: "a", Label: "smile"}))
	assert.Error(t, store.Save(ctx, &Entry{Label: "smile"}))
	assert.Error(t, store.Save(ctx, nil))
}

func TestSaveStampsCreatedAt(t *testing.T) {
	store := openStore(t)
	entry := &Entry{ID: "stamp", Label: "smile"}
	require.NoError(t, store.Save(context.Background(), entry))
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestRecentNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, &Entry{
			ID:        fmt.Sprintf("req-%d", i),
			Label:     "no-smile",
			CreatedAt: base.Add(time.Duration(i) * 500 * time.Millisecond),
		}))
	}

	recent, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "req-4", recent[0].ID)
	assert.Equal(t, "req-3", recent[1].ID)
	assert.Equal(t, "req-2", recent[2].ID)

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestOpenFilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, &Entry{ID: "kept", Label: "smile", Smile: true}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, "kept")
	require.NoError(t, err)
	assert.True(t, got.Smile)
}
