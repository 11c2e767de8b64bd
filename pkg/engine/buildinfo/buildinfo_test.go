package buildinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openslide/buildindex/pkg/config"
)

func TestDateFromID(t *testing.T) {
	tests := []struct {
		id      string
		from    config.DateFrom
		want    string
		wantErr bool
	}{
		{"4.0.0+20231015.1a2b3c", config.DateFromMetadata, "2023-10-15", false},
		{"4.0.0.1+20240229", config.DateFromMetadata, "2024-02-29", false},
		{"4.0.0", config.DateFromMetadata, "", true},
		{"4.0.0+nightly.1", config.DateFromMetadata, "", true},
		{"20231015-1a2b3c", config.DateFromPrefix, "2023-10-15", false},
		{"20231345-1a2b3c", config.DateFromPrefix, "", true},
		{"20231015", config.DateFromPrefix, "2023-10-15", false},
		{"20231015", "mtime", "", true},
	}

	for _, tt := range tests {
		got, err := DateFromID(tt.id, tt.from)
		if tt.wantErr {
			assert.Error(t, err, tt.id)
			continue
		}
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.want, got, tt.id)
	}
}

func TestListSuffixes(t *testing.T) {
	dir := t.TempDir()
	id := "4.0.0+20231015.abc"
	for _, name := range []string{
		"openslide-bin-" + id + "-windows-x64.zip",
		"openslide-bin-" + id + ".tar.gz",
		"openslide-bin-" + id + "-linux-x86_64.tar.xz",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	got, err := ListSuffixes(dir, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"-linux-x86_64.tar.xz", "-windows-x64.zip", ".tar.gz"}, got)
}

func TestListSuffixes_Errors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), nil, 0644))

	_, err := ListSuffixes(dir, "4.0.0")
	assert.ErrorContains(t, err, "does not contain build identifier")

	_, err = ListSuffixes(filepath.Join(dir, "missing"), "4.0.0")
	assert.Error(t, err)
}

func TestListSuffixes_Empty(t *testing.T) {
	got, err := ListSuffixes(t.TempDir(), "4.0.0")
	require.NoError(t, err)
	assert.Empty(t, got)
}
