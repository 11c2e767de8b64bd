// Package lazarus keeps a copy of every purged build record so a
// deleted release can be traced back to the build that produced it.
package lazarus

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/openslide/buildindex/pkg/storage"
)

const prefix = "tombstones"

// Tombstone is the record of a build whose release was purged.
type Tombstone struct {
	BuildID    string            `json:"build_id"`
	ReleaseTag string            `json:"release_tag"`
	Repo       string            `json:"repo"`
	Timestamp  int64             `json:"timestamp"`
	Record     map[string]string `json:"record"`
	Files      []string          `json:"files,omitempty"`
}

// NewTombstone creates a new preservation record.
func NewTombstone(buildID, tag, repo string, record map[string]string, files []string) *Tombstone {
	return &Tombstone{
		BuildID:    buildID,
		ReleaseTag: tag,
		Repo:       repo,
		Timestamp:  time.Now().Unix(),
		Record:     record,
		Files:      files,
	}
}

// Key returns the storage key for a build identifier.
func Key(buildID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(buildID)
	return path.Join(prefix, safe+".json")
}

// Save writes the tombstone to the store.
func (t *Tombstone) Save(ctx context.Context, store storage.BlobStore) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize tombstone: %w", err)
	}
	if err := store.Put(ctx, Key(t.BuildID), append(data, '\n')); err != nil {
		return fmt.Errorf("failed to save tombstone for %s: %w", t.BuildID, err)
	}
	return nil
}

// Load reads the tombstone of a build.
func Load(ctx context.Context, store storage.BlobStore, buildID string) (*Tombstone, error) {
	data, err := store.Get(ctx, Key(buildID))
	if err != nil {
		return nil, err
	}
	var t Tombstone
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tombstone: %w", err)
	}
	return &t, nil
}

// List returns the build identifiers that have tombstones.
func List(ctx context.Context, store storage.BlobStore) ([]string, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			ids = append(ids, strings.TrimSuffix(path.Base(k), ".json"))
		}
	}
	return ids, nil
}
