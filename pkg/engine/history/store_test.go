package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openslide/buildindex/pkg/storage"
)

var buildsSchema = Schema{
	IDKey:       "version",
	FieldKeys:   []string{"openslide", "openslide-java", "openslide-bin"},
	BuilderKeys: []string{"linux-builder", "windows-builder"},
}

func fixedClock() time.Time {
	return time.Unix(1700000000, 0)
}

func sampleRecord(id, date, openslide string, files ...string) BuildRecord {
	return BuildRecord{
		ID:   id,
		Date: date,
		Fields: []Value{
			{Key: "openslide", Value: openslide},
			{Key: "openslide-java", Value: "bbbb2222"},
			{Key: "openslide-bin", Value: "cccc3333"},
		},
		Files: files,
		Builders: []Value{
			{Key: "linux-builder", Value: "ghcr.io/openslide/linux-builder@sha256:1111"},
			{Key: "windows-builder", Value: "ghcr.io/openslide/winbuild-builder@sha256:2222"},
		},
	}
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	store := NewStore(storage.NewLocalStore(t.TempDir()), "index.json", buildsSchema)

	log, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, log.Builds)
	assert.Zero(t, log.LastUpdate)
}

func TestStore_LoadCorrupt(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.json"), []byte("{not json"), 0644))
	store := NewStore(storage.NewLocalStore(root), "index.json", buildsSchema)

	_, err := store.Load(context.Background())
	require.Error(t, err)

	var readErr *StorageReadError
	assert.True(t, errors.As(err, &readErr))
	assert.Equal(t, "index.json", readErr.Key)
}

func TestStore_LoadWrongType(t *testing.T) {
	root := t.TempDir()
	doc := `{"builds": [{"version": 7}], "last_update": 1}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.json"), []byte(doc), 0644))
	store := NewStore(storage.NewLocalStore(root), "index.json", buildsSchema)

	_, err := store.Load(context.Background())
	var readErr *StorageReadError
	require.True(t, errors.As(err, &readErr))
	assert.Contains(t, err.Error(), "build 0")
}

func TestStore_SaveGolden(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewStore(storage.NewLocalStore(root), "index.json", buildsSchema, WithClock(fixedClock))

	log := RecordLog{Builds: []BuildRecord{
		// Files are written sorted regardless of input order.
		sampleRecord("4.0.0+20231015.abc", "2023-10-15", "aaaa1111", ".tar.gz", "-linux-x86_64.tar.xz"),
		sampleRecord("4.0.0+20231016.def", "2023-10-16", "aaaa1112", ".tar.gz"),
	}}

	saved, err := store.Save(ctx, log)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), saved.LastUpdate)

	data, err := os.ReadFile(filepath.Join(root, "index.json"))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "builds_index", data)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewLocalStore(t.TempDir()), "index.json", buildsSchema, WithClock(fixedClock))

	in := RecordLog{Builds: []BuildRecord{
		sampleRecord("a", "2023-10-15", "x1", ".tar.gz"),
		sampleRecord("b", "2023-10-16", "x2", ".tar.gz"),
	}}
	_, err := store.Save(ctx, in)
	require.NoError(t, err)

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out.Builds, 2)
	assert.Equal(t, int64(1700000000), out.LastUpdate)
	assert.Equal(t, "a", out.Builds[0].ID)
	assert.Equal(t, "x2", out.Builds[1].Field("openslide"))
	assert.Equal(t, "ghcr.io/openslide/winbuild-builder@sha256:2222", out.Builds[1].Builder("windows-builder"))
	assert.Equal(t, []string{".tar.gz"}, out.Builds[0].Files)
}

func TestStore_PreservesUnknownKeys(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	doc := `{
  "builds": [
    {"pkgver": "20231015-abc", "date": "2023-10-15", "openslide": "a", "openslide-java": "b", "openslide-winbuild": "c", "notes": {"rebuilt": true}}
  ],
  "last_update": 5
}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.json"), []byte(doc), 0644))

	schema := Schema{IDKey: "pkgver", FieldKeys: []string{"openslide", "openslide-java", "openslide-winbuild"}}
	store := NewStore(storage.NewLocalStore(root), "index.json", schema, WithClock(fixedClock))

	log, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, log.Builds, 1)
	assert.Nil(t, log.Builds[0].Files)

	_, err = store.Save(ctx, log)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "index.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"notes": {`)
	assert.Contains(t, string(data), `"rebuilt": true`)
	assert.NotContains(t, string(data), `"files"`)
}

func TestStore_EmptyLogMarshal(t *testing.T) {
	store := NewStore(storage.NewLocalStore(t.TempDir()), "index.json", buildsSchema)

	data, err := store.Marshal(RecordLog{LastUpdate: 3})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"builds\": [],\n  \"last_update\": 3\n}\n", string(data))
}

func TestRecordClone(t *testing.T) {
	r := sampleRecord("a", "2023-10-15", "x1", ".tar.gz")
	c := r.Clone()
	c.Fields[0].Value = "changed"
	c.Files[0] = "changed"

	assert.Equal(t, "x1", r.Field("openslide"))
	assert.Equal(t, ".tar.gz", r.Files[0])
}
