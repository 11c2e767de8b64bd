package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openslide/buildindex/pkg/storage"
)

// StorageReadError is a failure to read or parse an existing record log.
// An absent log is not an error.
type StorageReadError struct {
	Key string
	Err error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("failed to read record log %s: %v", e.Key, e.Err)
}

func (e *StorageReadError) Unwrap() error {
	return e.Err
}

// document is the persisted form.
type document struct {
	Builds     []map[string]json.RawMessage `json:"builds"`
	LastUpdate int64                        `json:"last_update"`
}

// Store reads and writes the record log through a BlobStore.
type Store struct {
	blobs  storage.BlobStore
	key    string
	schema Schema
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp saved logs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store for the record log at key.
func NewStore(blobs storage.BlobStore, key string, schema Schema, opts ...Option) *Store {
	s := &Store{
		blobs:  blobs,
		key:    key,
		schema: schema,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the persisted log, or an empty log if none exists yet.
func (s *Store) Load(ctx context.Context) (RecordLog, error) {
	data, err := s.blobs.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return RecordLog{}, nil
	}
	if err != nil {
		return RecordLog{}, &StorageReadError{Key: s.key, Err: err}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return RecordLog{}, &StorageReadError{Key: s.key, Err: err}
	}

	log := RecordLog{LastUpdate: doc.LastUpdate}
	for i, obj := range doc.Builds {
		r, err := s.schema.decode(obj)
		if err != nil {
			return RecordLog{}, &StorageReadError{Key: s.key, Err: fmt.Errorf("build %d: %w", i, err)}
		}
		log.Builds = append(log.Builds, r)
	}
	return log, nil
}

// Save stamps the log with the current time and writes it.
// It returns the stamped log.
func (s *Store) Save(ctx context.Context, log RecordLog) (RecordLog, error) {
	log.LastUpdate = s.now().Unix()

	data, err := s.Marshal(log)
	if err != nil {
		return log, err
	}
	if err := s.blobs.Put(ctx, s.key, data); err != nil {
		return log, fmt.Errorf("failed to write record log %s: %w", s.key, err)
	}
	return log, nil
}

// Marshal renders the log with sorted keys, two-space indentation and a
// trailing newline.
func (s *Store) Marshal(log RecordLog) ([]byte, error) {
	builds := make([]map[string]any, 0, len(log.Builds))
	for _, r := range log.Builds {
		builds = append(builds, s.schema.encode(r))
	}
	out := map[string]any{
		"builds":      builds,
		"last_update": log.LastUpdate,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("failed to encode record log: %w", err)
	}
	return buf.Bytes(), nil
}
