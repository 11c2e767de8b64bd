// Package release defines the capability the index needs from the
// release hosting service.
package release

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates the release or package does not exist.
var ErrNotFound = errors.New("not found")

// Release is a hosted release.
type Release struct {
	ID      int64
	TagName string
}

// ContainerVersion is one published version of a container image.
type ContainerVersion struct {
	// Name is the image digest, e.g. "sha256:abcd...".
	Name    string
	HTMLURL string
}

// Store is the narrow capability used by the purger and the renderer.
type Store interface {
	FindReleaseByTag(ctx context.Context, tag string) (Release, error)
	DeleteRelease(ctx context.Context, id int64) error
	ListContainerVersions(ctx context.Context, org, name string) ([]ContainerVersion, error)
}

// RemoteServiceError is an unexpected response from the hosting service.
type RemoteServiceError struct {
	Op         string
	URL        string
	StatusCode int
	Body       string
}

func (e *RemoteServiceError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}
