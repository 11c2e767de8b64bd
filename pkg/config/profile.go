package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DateFrom selects how a build date is derived from its identifier.
type DateFrom string

const (
	// DateFromMetadata reads YYYYMMDD from the build metadata: "4.0.0+20231015.abc".
	DateFromMetadata DateFrom = "metadata"
	// DateFromPrefix reads YYYYMMDD before the first dash: "20231015-abc".
	DateFromPrefix DateFrom = "prefix"
)

// Field is a tracked upstream revision column.
type Field struct {
	// Key is the record key holding the revision.
	Key string `yaml:"key"`
	// Label is the column heading.
	Label string `yaml:"label"`
	// CompareURL links two revisions; {prev} and {cur} are replaced.
	CompareURL string `yaml:"compare_url"`
}

// Builder is a builder image column.
type Builder struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	// When is an optional CEL expression deciding whether the cell is shown.
	When string `yaml:"when"`
}

// Artifact is a download link column.
type Artifact struct {
	Label string `yaml:"label"`
	// Suffix is the filename suffix recorded in a build's files.
	Suffix string `yaml:"suffix"`
	// URL is the download location; {id} and {suffix} are replaced.
	URL  string `yaml:"url"`
	When string `yaml:"when"`
}

// Condition returns the CEL expression gating the artifact link.
// Artifacts with a suffix are shown only when the build produced that file.
func (a Artifact) Condition() string {
	if a.When != "" || a.Suffix == "" {
		return a.When
	}
	return fmt.Sprintf("%q in files", a.Suffix)
}

// Container is a builder image repository on the hosting service.
type Container struct {
	Org      string `yaml:"org"`
	Name     string `yaml:"name"`
	Registry string `yaml:"registry"`
}

// Ref returns the image reference for a version digest.
func (c Container) Ref(digest string) string {
	registry := c.Registry
	if registry == "" {
		registry = "ghcr.io"
	}
	return fmt.Sprintf("%s/%s/%s@%s", registry, c.Org, c.Name, digest)
}

// Profile describes one build index.
type Profile struct {
	Name         string      `yaml:"name"`
	Title        string      `yaml:"title"`
	Repo         string      `yaml:"repo"`
	Tag          string      `yaml:"tag"`
	IDKey        string      `yaml:"id_key"`
	DateFrom     DateFrom    `yaml:"date_from"`
	Retain       int         `yaml:"retain"`
	JSONPath     string      `yaml:"json_path"`
	HTMLPath     string      `yaml:"html_path"`
	RequireFiles bool        `yaml:"require_files"`
	Fields       []Field     `yaml:"fields"`
	Builders     []Builder   `yaml:"builders"`
	Artifacts    []Artifact  `yaml:"artifacts"`
	Containers   []Container `yaml:"containers"`
}

// ReleaseTag returns the release tag for a build identifier.
func (p Profile) ReleaseTag(id string) string {
	return strings.ReplaceAll(p.Tag, "{id}", id)
}

// FieldKeys returns the tracked field keys in column order.
func (p Profile) FieldKeys() []string {
	keys := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		keys[i] = f.Key
	}
	return keys
}

// BuilderKeys returns the builder keys in column order.
func (p Profile) BuilderKeys() []string {
	keys := make([]string, len(p.Builders))
	for i, b := range p.Builders {
		keys[i] = b.Key
	}
	return keys
}

// Validate checks the profile for structural errors.
func (p Profile) Validate() error {
	var errs []error
	if p.Repo == "" || strings.Count(p.Repo, "/") != 1 {
		errs = append(errs, fmt.Errorf("repo %q must be owner/name", p.Repo))
	}
	if !strings.Contains(p.Tag, "{id}") {
		errs = append(errs, fmt.Errorf("tag %q must contain {id}", p.Tag))
	}
	if p.IDKey == "" {
		errs = append(errs, errors.New("id_key is required"))
	}
	if p.Retain < 1 {
		errs = append(errs, fmt.Errorf("retain must be at least 1, got %d", p.Retain))
	}
	if p.JSONPath == "" || p.HTMLPath == "" {
		errs = append(errs, errors.New("json_path and html_path are required"))
	}
	switch p.DateFrom {
	case DateFromMetadata, DateFromPrefix:
	default:
		errs = append(errs, fmt.Errorf("unknown date_from %q", p.DateFrom))
	}
	if len(p.Fields) == 0 {
		errs = append(errs, errors.New("at least one tracked field is required"))
	}

	seen := map[string]bool{p.IDKey: true, "date": true, "files": true}
	for _, key := range append(p.FieldKeys(), p.BuilderKeys()...) {
		if key == "" {
			errs = append(errs, errors.New("field and builder keys must not be empty"))
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate record key %q", key))
		}
		seen[key] = true
	}
	for _, c := range p.Containers {
		if c.Org == "" || c.Name == "" {
			errs = append(errs, fmt.Errorf("container %q needs org and name", c.Org+"/"+c.Name))
		}
	}
	return errors.Join(errs...)
}

// LoadProfile reads a YAML profile from disk.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile document. Unset values fall back
// to the builtin profile named by "base", if any.
func ParseProfile(data []byte) (Profile, error) {
	var doc struct {
		Base    string `yaml:"base"`
		Profile `yaml:",inline"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Profile{}, fmt.Errorf("failed to parse profile: %w", err)
	}

	p := doc.Profile
	if doc.Base != "" {
		base, ok := BuiltinProfile(doc.Base)
		if !ok {
			return Profile{}, fmt.Errorf("unknown base profile %q", doc.Base)
		}
		p = merge(base, p)
	}
	if p.Retain == 0 {
		p.Retain = DefaultRetain
	}
	if p.DateFrom == "" {
		p.DateFrom = DateFromMetadata
	}

	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("invalid profile: %w", err)
	}
	return p, nil
}

func merge(base, over Profile) Profile {
	out := base
	if over.Name != "" {
		out.Name = over.Name
	}
	if over.Title != "" {
		out.Title = over.Title
	}
	if over.Repo != "" {
		out.Repo = over.Repo
	}
	if over.Tag != "" {
		out.Tag = over.Tag
	}
	if over.IDKey != "" {
		out.IDKey = over.IDKey
	}
	if over.DateFrom != "" {
		out.DateFrom = over.DateFrom
	}
	if over.Retain != 0 {
		out.Retain = over.Retain
	}
	if over.JSONPath != "" {
		out.JSONPath = over.JSONPath
	}
	if over.HTMLPath != "" {
		out.HTMLPath = over.HTMLPath
	}
	if over.RequireFiles {
		out.RequireFiles = true
	}
	if over.Fields != nil {
		out.Fields = over.Fields
	}
	if over.Builders != nil {
		out.Builders = over.Builders
	}
	if over.Artifacts != nil {
		out.Artifacts = over.Artifacts
	}
	if over.Containers != nil {
		out.Containers = over.Containers
	}
	return out
}
