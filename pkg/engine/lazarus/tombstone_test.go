package lazarus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openslide/buildindex/pkg/storage"
)

func TestTombstone_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStore(t.TempDir())

	ts := NewTombstone("4.0.0+20231015.abc", "v4.0.0+20231015.abc", "openslide/builds",
		map[string]string{"openslide": "aaaa"}, []string{".tar.gz"})
	require.NoError(t, ts.Save(ctx, store))

	got, err := Load(ctx, store, "4.0.0+20231015.abc")
	require.NoError(t, err)
	assert.Equal(t, "v4.0.0+20231015.abc", got.ReleaseTag)
	assert.Equal(t, "aaaa", got.Record["openslide"])
	assert.Equal(t, []string{".tar.gz"}, got.Files)
	assert.NotZero(t, got.Timestamp)

	ids, err := List(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"4.0.0+20231015.abc"}, ids)
}

func TestTombstone_LoadMissing(t *testing.T) {
	_, err := Load(context.Background(), storage.NewLocalStore(t.TempDir()), "nope")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "tombstones/a_b.json", Key("a/b"))
}
