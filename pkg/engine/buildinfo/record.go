package buildinfo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openslide/buildindex/pkg/config"
	"github.com/openslide/buildindex/pkg/engine/history"
	"github.com/openslide/buildindex/pkg/engine/retention"
)

// Input is the raw description of a new build, as given on the command line.
type Input struct {
	ID string
	// Date overrides the date derived from ID.
	Date string
	// FilesDir is the directory holding the build's artifacts.
	FilesDir string
	Fields   map[string]string
	Builders map[string]string
}

// Empty reports whether no part of a new build was given.
func (in Input) Empty() bool {
	return in.ID == "" && in.Date == "" && in.FilesDir == "" &&
		len(in.Fields) == 0 && len(in.Builders) == 0
}

// NewRecord assembles a record for profile p. It returns nil when in is
// empty. Completeness is checked later by the retention engine; NewRecord
// only rejects input it cannot interpret.
func NewRecord(p config.Profile, in Input) (*history.BuildRecord, error) {
	if in.Empty() {
		return nil, nil
	}
	if in.ID == "" {
		return nil, &retention.ValidationError{Missing: []string{p.IDKey}}
	}

	if err := checkKeys("field", in.Fields, p.FieldKeys()); err != nil {
		return nil, err
	}
	if err := checkKeys("builder", in.Builders, p.BuilderKeys()); err != nil {
		return nil, err
	}

	r := &history.BuildRecord{ID: in.ID, Date: in.Date}
	if r.Date == "" {
		date, err := DateFromID(in.ID, p.DateFrom)
		if err != nil {
			return nil, err
		}
		r.Date = date
	}
	if in.FilesDir != "" {
		files, err := ListSuffixes(in.FilesDir, in.ID)
		if err != nil {
			return nil, err
		}
		r.Files = files
	}
	for _, key := range p.FieldKeys() {
		if v := in.Fields[key]; v != "" {
			r.Fields = append(r.Fields, history.Value{Key: key, Value: v})
		}
	}
	for _, key := range p.BuilderKeys() {
		if v := in.Builders[key]; v != "" {
			r.Builders = append(r.Builders, history.Value{Key: key, Value: v})
		}
	}
	return r, nil
}

func checkKeys(kind string, given map[string]string, known []string) error {
	var unknown []string
	for k := range given {
		found := false
		for _, want := range known {
			if k == want {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown %s key(s): %s (expected one of: %s)",
		kind, strings.Join(unknown, ", "), strings.Join(known, ", "))
}
