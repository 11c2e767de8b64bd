// Package retention decides which build records stay in the index.
//
// Update is pure: it never mutates its inputs and performs no I/O, so a
// retried run recomputes exactly the same purge set.
package retention

import (
	"fmt"
	"strings"

	"github.com/openslide/buildindex/pkg/engine/history"
)

// ValidationError reports a new build record with missing required fields.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("new build must be completely specified (missing: %s)", strings.Join(e.Missing, ", "))
}

// Policy is the immutable retention configuration.
type Policy struct {
	// Retain is the maximum number of records kept.
	Retain int
	// FieldKeys and BuilderKeys must be non-empty on a new record.
	FieldKeys   []string
	BuilderKeys []string
	// RequireFiles demands at least one artifact suffix on a new record.
	RequireFiles bool
}

// Engine applies a Policy to a record log.
type Engine struct {
	policy Policy
}

// NewEngine creates an engine. Retain values below one are treated as one.
func NewEngine(p Policy) *Engine {
	if p.Retain < 1 {
		p.Retain = 1
	}
	return &Engine{policy: p}
}

// Retain returns the retention window.
func (e *Engine) Retain() int {
	return e.policy.Retain
}

// Validate checks that a new record is fully specified.
func (e *Engine) Validate(r history.BuildRecord) error {
	var missing []string
	if r.ID == "" {
		missing = append(missing, "identifier")
	}
	if r.Date == "" {
		missing = append(missing, "date")
	}
	for _, key := range e.policy.FieldKeys {
		if r.Field(key) == "" {
			missing = append(missing, key)
		}
	}
	for _, key := range e.policy.BuilderKeys {
		if r.Builder(key) == "" {
			missing = append(missing, key)
		}
	}
	if e.policy.RequireFiles && len(r.Files) == 0 {
		missing = append(missing, "files")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Update appends newRecord (if non-nil) and trims the result to the
// retention window. It returns the retained log and the records that
// fell out of the window, both oldest first. purged followed by the
// retained builds always reconstructs the candidate log.
func (e *Engine) Update(log history.RecordLog, newRecord *history.BuildRecord) (history.RecordLog, []history.BuildRecord, error) {
	if newRecord != nil {
		if err := e.Validate(*newRecord); err != nil {
			return log, nil, err
		}
	}

	candidate := make([]history.BuildRecord, 0, len(log.Builds)+1)
	for _, r := range log.Builds {
		candidate = append(candidate, r.Clone())
	}
	if newRecord != nil {
		candidate = append(candidate, newRecord.Clone())
	}

	cut := len(candidate) - e.policy.Retain
	if cut < 0 {
		cut = 0
	}

	// Full slice expressions keep the two halves from sharing capacity.
	var purged []history.BuildRecord
	if cut > 0 {
		purged = candidate[:cut:cut]
	}
	trimmed := history.RecordLog{
		Builds:     candidate[cut:len(candidate):len(candidate)],
		LastUpdate: log.LastUpdate,
	}
	return trimmed, purged, nil
}
