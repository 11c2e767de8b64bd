package release

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MockStore is an in-memory Store used by mock mode and tests.
type MockStore struct {
	mu         sync.Mutex
	nextID     int64
	releases   map[string]int64
	containers map[string][]ContainerVersion

	// FailOn makes the named operation ("find", "delete", "list") fail
	// with a RemoteServiceError for the given key (tag, id or org/name).
	FailOn map[string]string

	Lookups []string
	Deletes []int64
}

// NewMockStore creates a store holding a release for each tag.
func NewMockStore(tags ...string) *MockStore {
	m := &MockStore{
		releases:   make(map[string]int64),
		containers: make(map[string][]ContainerVersion),
		FailOn:     make(map[string]string),
	}
	for _, tag := range tags {
		m.AddRelease(tag)
	}
	return m
}

// AddRelease creates a release and returns its id.
func (m *MockStore) AddRelease(tag string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.releases[tag] = m.nextID
	return m.nextID
}

// AddContainerVersion publishes an image version.
func (m *MockStore) AddContainerVersion(org, name string, v ContainerVersion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := org + "/" + name
	m.containers[key] = append(m.containers[key], v)
}

// Tags returns the remaining release tags, sorted.
func (m *MockStore) Tags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]string, 0, len(m.releases))
	for tag := range m.releases {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (m *MockStore) fail(op, key string) error {
	if m.FailOn[op] == key {
		return &RemoteServiceError{Op: op, URL: key, StatusCode: 500}
	}
	return nil
}

func (m *MockStore) FindReleaseByTag(ctx context.Context, tag string) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups = append(m.Lookups, tag)
	if err := m.fail("find", tag); err != nil {
		return Release{}, err
	}
	id, ok := m.releases[tag]
	if !ok {
		return Release{}, fmt.Errorf("release %s: %w", tag, ErrNotFound)
	}
	return Release{ID: id, TagName: tag}, nil
}

func (m *MockStore) DeleteRelease(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete", fmt.Sprint(id)); err != nil {
		return err
	}
	for tag, rid := range m.releases {
		if rid == id {
			delete(m.releases, tag)
			m.Deletes = append(m.Deletes, id)
			return nil
		}
	}
	return fmt.Errorf("release %d: %w", id, ErrNotFound)
}

func (m *MockStore) ListContainerVersions(ctx context.Context, org, name string) ([]ContainerVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := org + "/" + name
	if err := m.fail("list", key); err != nil {
		return nil, err
	}
	return append([]ContainerVersion(nil), m.containers[key]...), nil
}
