package buildinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openslide/buildindex/pkg/config"
	"github.com/openslide/buildindex/pkg/engine/history"
	"github.com/openslide/buildindex/pkg/engine/retention"
)

func TestNewRecord_Empty(t *testing.T) {
	p, _ := config.BuiltinProfile("builds")
	r, err := NewRecord(p, Input{})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestNewRecord_MissingID(t *testing.T) {
	p, _ := config.BuiltinProfile("builds")
	_, err := NewRecord(p, Input{Fields: map[string]string{"openslide": "abc"}})

	var verr *retention.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"version"}, verr.Missing)
}

func TestNewRecord_Builds(t *testing.T) {
	p, _ := config.BuiltinProfile("builds")
	id := "4.0.0+20231015.1a2b3c"

	dir := t.TempDir()
	for _, name := range []string{
		"openslide-bin-" + id + "-windows-x64.zip",
		"openslide-bin-" + id + ".tar.gz",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	r, err := NewRecord(p, Input{
		ID:       id,
		FilesDir: dir,
		Fields: map[string]string{
			"openslide-bin":  "ccc",
			"openslide":      "aaa",
			"openslide-java": "bbb",
		},
		Builders: map[string]string{"windows-builder": "ghcr.io/openslide/winbuild-builder@sha256:01"},
	})
	require.NoError(t, err)

	assert.Equal(t, "2023-10-15", r.Date)
	assert.Equal(t, []string{"-windows-x64.zip", ".tar.gz"}, r.Files)
	assert.Equal(t, []history.Value{
		{Key: "openslide", Value: "aaa"},
		{Key: "openslide-java", Value: "bbb"},
		{Key: "openslide-bin", Value: "ccc"},
	}, r.Fields)
	assert.Equal(t, "ghcr.io/openslide/winbuild-builder@sha256:01", r.Builder("windows-builder"))
	assert.Empty(t, r.Builder("linux-builder"))
}

func TestNewRecord_ExplicitDate(t *testing.T) {
	p, _ := config.BuiltinProfile("winbuild")
	r, err := NewRecord(p, Input{ID: "not-a-date", Date: "2024-01-02"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", r.Date)
}

func TestNewRecord_Rejects(t *testing.T) {
	p, _ := config.BuiltinProfile("winbuild")

	_, err := NewRecord(p, Input{ID: "20231015-abc", Fields: map[string]string{"openslide-bin": "x"}})
	assert.ErrorContains(t, err, "unknown field key(s): openslide-bin")

	_, err = NewRecord(p, Input{ID: "20231015-abc", Builders: map[string]string{"linux-builder": "x"}})
	assert.ErrorContains(t, err, "unknown builder key(s): linux-builder")

	_, err = NewRecord(p, Input{ID: "nightly-abc"})
	assert.ErrorContains(t, err, "invalid date")
}
