// Package github implements release.Store against the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openslide/buildindex/pkg/engine/release"
	"github.com/openslide/buildindex/pkg/version"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.github.com"

var _ release.Store = (*Client)(nil)

// Client talks to the releases and packages APIs of one repository.
type Client struct {
	BaseURL string
	Repo    string
	token   string
	http    *http.Client
}

// NewClient creates a client for repo ("owner/name").
func NewClient(repo, token string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		Repo:    repo,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

type releaseResponse struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
}

type versionResponse struct {
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// FindReleaseByTag returns release.ErrNotFound for a missing tag.
func (c *Client) FindReleaseByTag(ctx context.Context, tag string) (release.Release, error) {
	var out releaseResponse
	path := fmt.Sprintf("/repos/%s/releases/tags/%s", c.Repo, url.PathEscape(tag))
	if err := c.do(ctx, "FindReleaseByTag", http.MethodGet, path, &out); err != nil {
		return release.Release{}, err
	}
	return release.Release{ID: out.ID, TagName: out.TagName}, nil
}

// DeleteRelease deletes the release record. Assets go with it; the git
// tag is left alone.
func (c *Client) DeleteRelease(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/repos/%s/releases/%d", c.Repo, id)
	return c.do(ctx, "DeleteRelease", http.MethodDelete, path, nil)
}

// ListContainerVersions returns the newest 100 versions of a container package.
func (c *Client) ListContainerVersions(ctx context.Context, org, name string) ([]release.ContainerVersion, error) {
	var out []versionResponse
	path := fmt.Sprintf("/orgs/%s/packages/container/%s/versions?per_page=100", org, url.PathEscape(name))
	if err := c.do(ctx, "ListContainerVersions", http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	versions := make([]release.ContainerVersion, 0, len(out))
	for _, v := range out {
		versions = append(versions, release.ContainerVersion{Name: v.Name, HTMLURL: v.HTMLURL})
	}
	return versions, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, out any) error {
	ctx, span := otel.Tracer("buildindex/github").Start(ctx, "GitHub."+op)
	defer span.End()

	endpoint := strings.TrimSuffix(c.BaseURL, "/") + path
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", endpoint),
	)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", version.AppName+"/"+version.Current)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("%s %s: %w", op, endpoint, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: %w", op, endpoint, release.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := &release.RemoteServiceError{
			Op:         op,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Status)
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", op, endpoint, err)
	}
	return nil
}
