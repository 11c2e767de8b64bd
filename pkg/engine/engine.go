package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openslide/buildindex/pkg/config"
	"github.com/openslide/buildindex/pkg/engine/history"
	"github.com/openslide/buildindex/pkg/engine/notifier"
	"github.com/openslide/buildindex/pkg/engine/release"
	"github.com/openslide/buildindex/pkg/engine/remediation"
	"github.com/openslide/buildindex/pkg/engine/report"
	"github.com/openslide/buildindex/pkg/engine/retention"
	"github.com/openslide/buildindex/pkg/engine/rows"
	"github.com/openslide/buildindex/pkg/storage"
	"github.com/openslide/buildindex/pkg/telemetry"
	"github.com/openslide/buildindex/pkg/version"
)

// ErrPanic is returned when a run recovers from a panic.
var ErrPanic = errors.New("update aborted by internal failure")

// Config holds engine settings.
type Config struct {
	Profile config.Profile

	// Site holds the record file and the rendered page.
	Site storage.BlobStore
	// Tombstones, when set, receives a copy of each purged record.
	Tombstones storage.BlobStore
	// Releases is the hosting service. Required for Run.
	Releases release.Store

	SlackWebhook string
	SlackChannel string
	Verbose      bool
	JsonLogs     bool

	// Telemetry config.
	OtelEndpoint  string // "http://localhost:4318" or via env
	SkipTelemetry bool   // Set true if embedding in an app that already has OTEL

	// Dependencies.
	Logger *slog.Logger
	Clock  func() time.Time
}

// Engine runs index updates for one profile.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	// Immutable config.
	config Config

	Store     *history.Store
	Retention *retention.Engine
	Renderer  *report.Renderer
	Notifier  *notifier.SlackClient

	shutdown func(context.Context) error
}

// Option defines a functional configuration override.
type Option func(*Engine)

// WithConfig sets raw config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
		if cfg.Logger != nil {
			e.Logger = cfg.Logger
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.Logger = l
	}
}

// WithReleases sets the hosting service.
func WithReleases(r release.Store) Option {
	return func(e *Engine) {
		e.config.Releases = r
	}
}

// New initializes the Engine.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		Tracer: otel.Tracer("buildindex/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Logger == nil {
		e.Logger = NewLogger(e.config.JsonLogs, e.config.Verbose)
	}

	p := e.config.Profile
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %q: %w", p.Name, err)
	}
	if e.config.Site == nil {
		return nil, errors.New("no site store configured")
	}

	renderer, err := report.NewRenderer(p)
	if err != nil {
		return nil, err
	}
	e.Renderer = renderer

	var storeOpts []history.Option
	if e.config.Clock != nil {
		storeOpts = append(storeOpts, history.WithClock(e.config.Clock))
	}
	e.Store = history.NewStore(e.config.Site, p.JSONPath, Schema(p), storeOpts...)
	e.Retention = retention.NewEngine(retention.Policy{
		Retain:       p.Retain,
		FieldKeys:    p.FieldKeys(),
		BuilderKeys:  p.BuilderKeys(),
		RequireFiles: p.RequireFiles,
	})
	e.Notifier = notifier.NewSlackClient(e.config.SlackWebhook, e.config.SlackChannel)

	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OtelEndpoint)
		if err != nil {
			e.Logger.Warn("Telemetry failed", "error", err)
		} else {
			e.shutdown = shutdown
		}
	}

	return e, nil
}

// Profile returns the profile the engine maintains.
func (e *Engine) Profile() config.Profile {
	return e.config.Profile
}

// Close flushes telemetry.
func (e *Engine) Close(ctx context.Context) error {
	if e.shutdown == nil {
		return nil
	}
	return e.shutdown(ctx)
}

// Schema returns the record layout of a profile.
func Schema(p config.Profile) history.Schema {
	return history.Schema{
		IDKey:       p.IDKey,
		FieldKeys:   p.FieldKeys(),
		BuilderKeys: p.BuilderKeys(),
	}
}

// Result describes a completed update.
type Result struct {
	RunID string
	Log   history.RecordLog
	Purge remediation.Result
}

// Run appends newRecord (if non-nil), purges the releases of builds that
// fell out of the retention window, renders the page and persists the
// log. The log is written last, so a failed run leaves it unchanged and
// can be retried.
func (e *Engine) Run(ctx context.Context, newRecord *history.BuildRecord) (res Result, err error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Run")
	defer span.End()

	// Crash safety.
	defer e.recoverPanic(ctx, &err)

	if e.config.Releases == nil {
		return Result{}, errors.New("no release store configured")
	}

	res.RunID = uuid.NewString()
	p := e.config.Profile
	logger := e.Logger.With("run_id", res.RunID, "profile", p.Name)
	span.SetAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("run.profile", p.Name),
	)

	log, err := e.Store.Load(ctx)
	if err != nil {
		return res, e.fail(span, err)
	}
	if newRecord != nil {
		logger.Info("Adding build", "build", newRecord.ID, "date", newRecord.Date)
	}

	trimmed, purged, err := e.Retention.Update(log, newRecord)
	if err != nil {
		return res, e.fail(span, err)
	}

	purger := remediation.NewPurger(p, e.config.Releases,
		remediation.WithLogger(logger),
		remediation.WithTombstones(e.config.Tombstones),
	)
	res.Purge, err = purger.Purge(ctx, purged)
	if err != nil {
		return res, e.fail(span, err)
	}

	images, err := e.containerImages(ctx)
	if err != nil {
		return res, e.fail(span, err)
	}

	var page bytes.Buffer
	display := rows.Reverse(rows.Project(trimmed.Builds, p.FieldKeys()))
	if err := e.Renderer.Render(&page, display, images); err != nil {
		return res, e.fail(span, err)
	}
	if err := e.config.Site.Put(ctx, p.HTMLPath, page.Bytes()); err != nil {
		return res, e.fail(span, fmt.Errorf("failed to write %s: %w", p.HTMLPath, err))
	}

	res.Log, err = e.Store.Save(ctx, trimmed)
	if err != nil {
		return res, e.fail(span, err)
	}

	span.SetAttributes(
		attribute.Int("run.retained", len(res.Log.Builds)),
		attribute.Int("run.purged", len(purged)),
	)
	logger.Info("Index updated",
		"retained", len(res.Log.Builds),
		"deleted", len(res.Purge.Deleted),
		"already_gone", len(res.Purge.AlreadyGone),
	)

	summary := notifier.RunSummary{
		Profile:     p.Name,
		Deleted:     res.Purge.Deleted,
		AlreadyGone: res.Purge.AlreadyGone,
		Retained:    len(res.Log.Builds),
		Retain:      e.Retention.Retain(),
	}
	if newRecord != nil {
		summary.Added = newRecord.ID
	}
	if err := e.Notifier.SendRunSummary(ctx, summary); err != nil {
		logger.Warn("Slack notification failed", "error", err)
	}

	return res, nil
}

// Plan reports what Run would do without contacting the hosting service
// or writing anything.
func (e *Engine) Plan(ctx context.Context, newRecord *history.BuildRecord) (remediation.Manifest, error) {
	log, err := e.Store.Load(ctx)
	if err != nil {
		return remediation.Manifest{}, err
	}
	trimmed, purged, err := e.Retention.Update(log, newRecord)
	if err != nil {
		return remediation.Manifest{}, err
	}

	now := time.Now
	if e.config.Clock != nil {
		now = e.config.Clock
	}
	m := remediation.Plan(e.config.Profile, purged, now())
	if newRecord != nil {
		m.Added = newRecord.ID
	}
	for _, r := range trimmed.Builds {
		m.Retained = append(m.Retained, r.ID)
	}
	return m, nil
}

// Rows loads the log, trims it to the retention window and projects it
// oldest first, matching what the next Run would publish. It does not
// contact the hosting service or write anything.
func (e *Engine) Rows(ctx context.Context) ([]rows.DisplayRow, error) {
	log, err := e.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	trimmed, _, err := e.Retention.Update(log, nil)
	if err != nil {
		return nil, err
	}
	return rows.Project(trimmed.Builds, e.config.Profile.FieldKeys()), nil
}

// containerImages maps builder image references to their version pages.
func (e *Engine) containerImages(ctx context.Context) (map[string]string, error) {
	images := make(map[string]string)
	for _, c := range e.config.Profile.Containers {
		versions, err := e.config.Releases.ListContainerVersions(ctx, c.Org, c.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to list versions of %s/%s: %w", c.Org, c.Name, err)
		}
		for _, v := range versions {
			images[c.Ref(v.Name)] = v.HTMLURL
		}
	}
	return images, nil
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.Logger.Error("Update failed", "error", err)
	return err
}

// recoverPanic handles failures.
func (e *Engine) recoverPanic(ctx context.Context, err *error) {
	if r := recover(); r != nil {
		_, span := e.Tracer.Start(ctx, "CriticalPanic")

		stack := debug.Stack()
		span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "CRITICAL FAILURE")
		span.SetAttributes(
			attribute.String("crash.stack", string(stack)),
			attribute.String("crash.reason", fmt.Sprintf("%v", r)),
		)
		span.End()

		e.Logger.Error("CRITICAL FAILURE", "error", r, "stack", string(stack))
		*err = fmt.Errorf("%w: %v", ErrPanic, r)
	}
}

// NewLogger builds the process logger: JSON on stdout, or text when
// verbose output is requested on a terminal.
func NewLogger(jsonLogs, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{ReplaceAttr: redactSensitiveData}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if jsonLogs || !verbose {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// redactSensitiveData scrubs sensitive keys from logs.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"password": true, "token": true, "github_token": true,
		"authorization": true, "secret": true, "api_key": true,
		"webhook": true, "slack_webhook": true, "credential": true,
	}

	if sensitiveKeys[a.Key] {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue("[REDACTED]"),
		}
	}
	return a
}
