// Package remediation deletes the hosted releases of builds that fell
// out of the retention window.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/openslide/buildindex/pkg/config"
	"github.com/openslide/buildindex/pkg/engine/history"
	"github.com/openslide/buildindex/pkg/engine/lazarus"
	"github.com/openslide/buildindex/pkg/engine/release"
	"github.com/openslide/buildindex/pkg/storage"
)

// Result lists what a purge pass did, by build identifier.
type Result struct {
	Deleted     []string
	AlreadyGone []string
}

// Purger removes releases one at a time and stops at the first failure.
type Purger struct {
	profile    config.Profile
	releases   release.Store
	tombstones storage.BlobStore
	logger     *slog.Logger
	counter    metric.Int64Counter
}

// Option configures a Purger.
type Option func(*Purger)

// WithTombstones saves a tombstone for every record before deleting its release.
func WithTombstones(store storage.BlobStore) Option {
	return func(p *Purger) {
		p.tombstones = store
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Purger) {
		p.logger = l
	}
}

// NewPurger creates a purger for the releases of profile.
func NewPurger(profile config.Profile, releases release.Store, opts ...Option) *Purger {
	p := &Purger{
		profile:  profile,
		releases: releases,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	counter, err := otel.Meter("buildindex/remediation").Int64Counter(
		"buildindex.releases.purged",
		metric.WithDescription("Releases deleted after leaving the retention window"),
	)
	if err == nil {
		p.counter = counter
	}
	return p
}

// Purge deletes the release of each record in order. A release that no
// longer exists counts as purged, so re-running after a partial failure
// is safe. Any other failure aborts the pass.
func (p *Purger) Purge(ctx context.Context, records []history.BuildRecord) (Result, error) {
	ctx, span := otel.Tracer("buildindex/remediation").Start(ctx, "Purger.Purge")
	defer span.End()
	span.SetAttributes(attribute.Int("purge.candidates", len(records)))

	var res Result
	for _, r := range records {
		gone, err := p.purgeOne(ctx, r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "purge aborted")
			return res, err
		}
		if gone {
			res.AlreadyGone = append(res.AlreadyGone, r.ID)
		} else {
			res.Deleted = append(res.Deleted, r.ID)
		}
	}

	span.SetAttributes(
		attribute.Int("purge.deleted", len(res.Deleted)),
		attribute.Int("purge.already_gone", len(res.AlreadyGone)),
	)
	return res, nil
}

func (p *Purger) purgeOne(ctx context.Context, r history.BuildRecord) (alreadyGone bool, err error) {
	tag := p.profile.ReleaseTag(r.ID)
	p.logger.Info("Deleting release", "build", r.ID, "tag", tag)

	rel, err := p.releases.FindReleaseByTag(ctx, tag)
	if errors.Is(err, release.ErrNotFound) {
		p.logger.Info("Release already gone", "build", r.ID, "tag", tag)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up release %s: %w", tag, err)
	}

	// 1. Tombstone
	if p.tombstones != nil {
		ts := lazarus.NewTombstone(r.ID, tag, p.profile.Repo, flatten(r), r.Files)
		if err := ts.Save(ctx, p.tombstones); err != nil {
			return false, fmt.Errorf("safety check failed: %w", err)
		}
	}

	// 2. Delete
	if err := p.releases.DeleteRelease(ctx, rel.ID); err != nil {
		if errors.Is(err, release.ErrNotFound) {
			// Removed between lookup and delete.
			p.logger.Info("Release already gone", "build", r.ID, "tag", tag)
			return true, nil
		}
		return false, fmt.Errorf("failed to delete release %s (id %d): %w", tag, rel.ID, err)
	}

	if p.counter != nil {
		p.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("repo", p.profile.Repo)))
	}
	return false, nil
}

func flatten(r history.BuildRecord) map[string]string {
	out := map[string]string{"id": r.ID, "date": r.Date}
	for _, v := range r.Fields {
		out[v.Key] = v.Value
	}
	for _, v := range r.Builders {
		out[v.Key] = v.Value
	}
	return out
}
