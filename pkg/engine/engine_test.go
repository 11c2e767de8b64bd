package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openslide/buildindex/pkg/config"
	"github.com/openslide/buildindex/pkg/engine/history"
	"github.com/openslide/buildindex/pkg/engine/lazarus"
	"github.com/openslide/buildindex/pkg/engine/release"
	"github.com/openslide/buildindex/pkg/engine/retention"
	"github.com/openslide/buildindex/pkg/storage"
)

const (
	linuxDigest = "sha256:aaaaaaaa11112222"
	winDigest   = "sha256:bbbbbbbb33334444"
)

func testProfile() config.Profile {
	p, _ := config.BuiltinProfile("builds")
	p.Retain = 2
	return p
}

func build(id, openslide string) *history.BuildRecord {
	return &history.BuildRecord{
		ID:   id,
		Date: "2023-10-15",
		Fields: []history.Value{
			{Key: "openslide", Value: openslide},
			{Key: "openslide-java", Value: "java0000"},
			{Key: "openslide-bin", Value: "bin00000"},
		},
		Files: []string{"-linux-x86_64.tar.xz", ".tar.gz"},
		Builders: []history.Value{
			{Key: "linux-builder", Value: "ghcr.io/openslide/linux-builder@" + linuxDigest},
			{Key: "windows-builder", Value: "ghcr.io/openslide/winbuild-builder@" + winDigest},
		},
	}
}

func newTestEngine(t *testing.T, site, tombstones storage.BlobStore, releases release.Store) *Engine {
	t.Helper()
	e, err := New(context.Background(),
		WithConfig(Config{
			Profile:       testProfile(),
			Site:          site,
			Tombstones:    tombstones,
			SkipTelemetry: true,
			Clock:         func() time.Time { return time.Unix(1700000000, 0) },
		}),
		WithReleases(releases),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return e
}

func TestEngineInitialization(t *testing.T) {
	_, err := New(context.Background(), WithConfig(Config{
		Profile:       testProfile(),
		SkipTelemetry: true,
	}))
	assert.ErrorContains(t, err, "no site store")

	bad := testProfile()
	bad.Tag = "v"
	_, err = New(context.Background(), WithConfig(Config{
		Profile:       bad,
		Site:          storage.NewLocalStore(t.TempDir()),
		SkipTelemetry: true,
	}))
	assert.ErrorContains(t, err, "invalid profile")

	e, err := New(context.Background(), WithConfig(Config{
		Profile:       testProfile(),
		Site:          storage.NewLocalStore(t.TempDir()),
		SkipTelemetry: true,
	}))
	require.NoError(t, err)
	assert.NotNil(t, e.Logger, "Engine should have default logger")
	assert.NoError(t, e.Close(context.Background()))
}

func TestRun_AppendPurgeRender(t *testing.T) {
	ctx := context.Background()
	site := storage.NewLocalStore(t.TempDir())
	graves := storage.NewLocalStore(t.TempDir())
	releases := release.NewMockStore("va", "vb", "vc")
	releases.AddContainerVersion("openslide", "linux-builder", release.ContainerVersion{
		Name:    linuxDigest,
		HTMLURL: "https://github.com/orgs/openslide/packages/container/linux-builder/1",
	})
	e := newTestEngine(t, site, graves, releases)

	_, err := e.Run(ctx, build("a", "x1"))
	require.NoError(t, err)
	_, err = e.Run(ctx, build("b", "x1"))
	require.NoError(t, err)
	res, err := e.Run(ctx, build("c", "x2"))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"a"}, res.Purge.Deleted)
	assert.Empty(t, res.Purge.AlreadyGone)
	assert.Equal(t, []string{"vb", "vc"}, releases.Tags())
	require.Len(t, res.Log.Builds, 2)
	assert.Equal(t, "b", res.Log.Builds[0].ID)
	assert.Equal(t, "c", res.Log.Builds[1].ID)
	assert.Equal(t, int64(1700000000), res.Log.LastUpdate)

	ts, err := lazarus.Load(ctx, graves, "a")
	require.NoError(t, err)
	assert.Equal(t, "va", ts.ReleaseTag)

	page, err := site.Get(ctx, "index.html")
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "compare/x1...x2")
	assert.Contains(t, html, "https://github.com/orgs/openslide/packages/container/linux-builder/1")
	assert.Less(t, strings.Index(html, ">x2<"), strings.Index(html, ">x1<"), "newest build is listed first")

	loaded, err := e.Store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Log, loaded)

	display, err := e.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, display, 2)
	assert.Empty(t, display[0].Field("openslide").Previous)
	assert.Equal(t, "x1", display[1].Field("openslide").Previous)
}

func TestPlan_HasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	site := storage.NewLocalStore(t.TempDir())
	releases := release.NewMockStore("va", "vb", "vc")
	e := newTestEngine(t, site, nil, releases)

	for _, id := range []string{"a", "b"} {
		_, err := e.Run(ctx, build(id, "x1"))
		require.NoError(t, err)
	}
	before, err := site.Get(ctx, "index.json")
	require.NoError(t, err)

	m, err := e.Plan(ctx, build("c", "x2"))
	require.NoError(t, err)
	assert.Equal(t, "c", m.Added)
	assert.Equal(t, []string{"b", "c"}, m.Retained)
	require.Len(t, m.Actions, 1)
	assert.Equal(t, "va", m.Actions[0].Parameters["tag"])

	after, err := site.Get(ctx, "index.json")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"va", "vb", "vc"}, releases.Tags())
}

func TestRows_TrimsOverCapacityLog(t *testing.T) {
	ctx := context.Background()
	site := storage.NewLocalStore(t.TempDir())

	wide := testProfile()
	wide.Retain = 5
	e, err := New(ctx,
		WithConfig(Config{Profile: wide, Site: site, SkipTelemetry: true}),
		WithReleases(release.NewMockStore()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	for _, b := range []*history.BuildRecord{build("a", "x1"), build("b", "x2"), build("c", "x3")} {
		_, err := e.Run(ctx, b)
		require.NoError(t, err)
	}

	// Same site, retain lowered to 2.
	narrow := newTestEngine(t, site, nil, release.NewMockStore())
	display, err := narrow.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, display, 2)
	assert.Equal(t, "b", display[0].ID)
	assert.Equal(t, "c", display[1].ID)
	assert.Empty(t, display[0].Field("openslide").Previous, "purged builds are no diff baseline")
	assert.Equal(t, "x2", display[1].Field("openslide").Previous)

	// Listing does not rewrite the log.
	log, err := narrow.Store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, log.Builds, 3)
}

func TestRun_RetryAfterRemoteFailure(t *testing.T) {
	ctx := context.Background()
	site := storage.NewLocalStore(t.TempDir())
	releases := release.NewMockStore("va", "vb", "vc")
	e := newTestEngine(t, site, nil, releases)

	for _, id := range []string{"a", "b"} {
		_, err := e.Run(ctx, build(id, "x1"))
		require.NoError(t, err)
	}

	releases.FailOn["find"] = "va"
	_, err := e.Run(ctx, build("c", "x2"))
	var remote *release.RemoteServiceError
	require.ErrorAs(t, err, &remote)

	// The log is untouched, so the same purge set is retried.
	log, err := e.Store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, log.Builds, 2)
	assert.Equal(t, "a", log.Builds[0].ID)

	delete(releases.FailOn, "find")
	res, err := e.Run(ctx, build("c", "x2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Purge.Deleted)

	// Re-running without a new build purges nothing and changes nothing.
	again, err := e.Run(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Purge.Deleted)
	assert.Empty(t, again.Purge.AlreadyGone)
	assert.Equal(t, res.Log.Builds, again.Log.Builds)
}

func TestRun_AlreadyGone(t *testing.T) {
	ctx := context.Background()
	releases := release.NewMockStore()
	e := newTestEngine(t, storage.NewLocalStore(t.TempDir()), nil, releases)

	var res Result
	for _, id := range []string{"a", "b", "c"} {
		var err error
		res, err = e.Run(ctx, build(id, "x1"))
		require.NoError(t, err)
	}
	assert.Empty(t, res.Purge.Deleted)
	assert.Equal(t, []string{"a"}, res.Purge.AlreadyGone)
	assert.Equal(t, []string{"va"}, releases.Lookups)
}

func TestRun_ValidationLeavesSiteUntouched(t *testing.T) {
	ctx := context.Background()
	site := storage.NewLocalStore(t.TempDir())
	e := newTestEngine(t, site, nil, release.NewMockStore())

	incomplete := build("a", "")
	_, err := e.Run(ctx, incomplete)

	var verr *retention.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"openslide"}, verr.Missing)

	_, err = site.Get(ctx, "index.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = site.Get(ctx, "index.html")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRun_ContainerListingFailure(t *testing.T) {
	ctx := context.Background()
	releases := release.NewMockStore()
	releases.FailOn["list"] = "openslide/linux-builder"
	e := newTestEngine(t, storage.NewLocalStore(t.TempDir()), nil, releases)

	_, err := e.Run(ctx, build("a", "x1"))
	assert.ErrorContains(t, err, "openslide/linux-builder")
}

func TestRun_NoReleaseStore(t *testing.T) {
	e := newTestEngine(t, storage.NewLocalStore(t.TempDir()), nil, nil)
	_, err := e.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "no release store")
}

func TestOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	releases := release.NewMockStore()
	e, err := New(context.Background(),
		WithConfig(Config{Profile: testProfile(), Site: storage.NewLocalStore(t.TempDir()), SkipTelemetry: true}),
		WithLogger(logger),
		WithReleases(releases),
	)
	require.NoError(t, err)
	assert.Same(t, logger, e.Logger)
	assert.Same(t, releases, e.config.Releases)

	_, err = e.Run(context.Background(), build("a", "x1"))
	require.NoError(t, err)
}

func TestRedactSensitiveData(t *testing.T) {
	a := redactSensitiveData(nil, slog.String("token", "ghp_secret"))
	assert.Equal(t, "[REDACTED]", a.Value.String())

	b := redactSensitiveData(nil, slog.String("build", "a"))
	assert.Equal(t, "a", b.Value.String())
}
