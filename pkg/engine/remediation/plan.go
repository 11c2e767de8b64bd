package remediation

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/openslide/buildindex/pkg/config"
	"github.com/openslide/buildindex/pkg/engine/history"
)

// PlanAction is one release deletion the purger would perform.
type PlanAction struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Operation   string            `json:"operation"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// Manifest lists the actions of a purge, in order.
type Manifest struct {
	Version     string       `json:"version"`
	GeneratedAt time.Time    `json:"generated_at"`
	Added       string       `json:"added,omitempty"`
	Retained    []string     `json:"retained"`
	Actions     []PlanAction `json:"actions"`
}

// Plan describes the deletions for records without contacting the
// hosting service.
func Plan(p config.Profile, records []history.BuildRecord, now time.Time) Manifest {
	m := Manifest{
		Version:     "1.0",
		GeneratedAt: now.UTC(),
		Retained:    []string{},
		Actions:     make([]PlanAction, 0, len(records)),
	}
	for _, r := range records {
		tag := p.ReleaseTag(r.ID)
		m.Actions = append(m.Actions, PlanAction{
			ID:          r.ID,
			Type:        "release",
			Operation:   "delete",
			Description: fmt.Sprintf("Delete release %s of %s (built %s)", tag, p.Repo, r.Date),
			Parameters: map[string]string{
				"repo": p.Repo,
				"tag":  tag,
			},
		})
	}
	return m
}

// Write encodes the manifest as indented JSON.
func (m Manifest) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
