package report

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/openslide/buildindex/pkg/config"
	"github.com/openslide/buildindex/pkg/engine/policy"
	"github.com/openslide/buildindex/pkg/engine/rows"
)

// ShortLen is the number of revision characters displayed.
const ShortLen = 8

// IndexData holds data for the HTML template.
type IndexData struct {
	Title         string
	Retain        int
	FieldLabels   []string
	BuilderLabels []string
	ArtifactCount int
	Rows          []IndexRow
}

// IndexRow is one rendered build.
type IndexRow struct {
	Date      string
	Revisions []Link
	Builders  []Link
	Artifacts []Link
}

// Link is a table cell. Hidden cells render empty; cells without a URL
// render as plain text.
type Link struct {
	Text   string
	URL    string
	Hidden bool
}

const indexTemplate = `<!doctype html>

<style type="text/css">
  table {
    margin-left: 20px;
    border-collapse: collapse;
  }
  th.repo {
    padding-right: 1em;
  }
  td {
    padding-right: 20px;
  }
  td.date {
    padding-left: 5px;
  }
  td.revision {
    font-family: monospace;
  }
  td.spacer {
    padding-right: 25px;
  }
  td.artifact:last-child {
    padding-right: 5px;
  }
  tr {
    height: 2em;
  }
  tr:nth-child(2n) {
    background-color: #e8e8e8;
  }
</style>

<title>{{.Title}}</title>
<h1>{{.Title}}</h1>

<p>Here are the {{.Retain}} newest successful nightly builds.
Older builds are automatically deleted.
Builds are skipped if nothing has changed.

{{define "cell"}}{{if not .Hidden}}{{if .URL}}<a href="{{.URL}}">{{.Text}}</a>{{else}}{{.Text}}{{end}}{{end}}{{end -}}

<table>
  <tr>
    <th>Date</th>
    {{- range .FieldLabels}}
    <th class="repo">{{.}}</th>
    {{- end}}
    {{- range .BuilderLabels}}
    <th class="repo">{{.}}</th>
    {{- end}}
    <th></th>
    <th colspan="{{.ArtifactCount}}">Downloads</th>
  </tr>
  {{- range .Rows}}
  <tr>
    <td class="date">{{.Date}}</td>
    {{- range .Revisions}}
    <td class="revision">{{template "cell" .}}</td>
    {{- end}}
    {{- range .Builders}}
    <td class="revision">{{template "cell" .}}</td>
    {{- end}}
    <td class="spacer"></td>
    {{- range .Artifacts}}
    <td class="artifact">{{template "cell" .}}</td>
    {{- end}}
  </tr>
  {{- end}}
</table>
`

var indexTmpl = template.Must(template.New("index").Parse(indexTemplate))

// Renderer turns display rows into the HTML index of a profile.
type Renderer struct {
	profile config.Profile
	cel     *policy.CELEngine
}

// NewRenderer compiles the profile's cell conditions.
func NewRenderer(p config.Profile) (*Renderer, error) {
	engine, err := policy.NewCELEngine()
	if err != nil {
		return nil, err
	}
	for _, b := range p.Builders {
		if err := engine.Compile(b.When); err != nil {
			return nil, fmt.Errorf("builder %s: %w", b.Key, err)
		}
	}
	for _, a := range p.Artifacts {
		if err := engine.Compile(a.Condition()); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", a.Label, err)
		}
	}
	return &Renderer{profile: p, cel: engine}, nil
}

// Render writes the index for rows given newest first. images maps
// builder image references to browsable URLs. Inputs are not modified.
func (r *Renderer) Render(w io.Writer, newestFirst []rows.DisplayRow, images map[string]string) error {
	data, err := r.Data(newestFirst, images)
	if err != nil {
		return err
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render index: %w", err)
	}
	return nil
}

// Data builds the template data for rows given newest first.
func (r *Renderer) Data(newestFirst []rows.DisplayRow, images map[string]string) (IndexData, error) {
	p := r.profile
	data := IndexData{
		Title:         p.Title,
		Retain:        p.Retain,
		ArtifactCount: len(p.Artifacts),
		Rows:          make([]IndexRow, 0, len(newestFirst)),
	}
	for _, f := range p.Fields {
		data.FieldLabels = append(data.FieldLabels, f.Label)
	}
	for _, b := range p.Builders {
		data.BuilderLabels = append(data.BuilderLabels, b.Label)
	}

	for _, row := range newestFirst {
		in := conditionInput(row)
		out := IndexRow{Date: row.Date}

		for _, f := range p.Fields {
			out.Revisions = append(out.Revisions, revisionLink(f, row.Field(f.Key)))
		}

		for _, b := range p.Builders {
			show, err := r.cel.Eval(b.When, in)
			if err != nil {
				return IndexData{}, fmt.Errorf("build %s: builder %s: %w", row.ID, b.Key, err)
			}
			ref := in.Builders[b.Key]
			out.Builders = append(out.Builders, Link{
				Text:   BuilderShort(ref),
				URL:    images[ref],
				Hidden: !show || ref == "",
			})
		}

		for _, a := range p.Artifacts {
			show, err := r.cel.Eval(a.Condition(), in)
			if err != nil {
				return IndexData{}, fmt.Errorf("build %s: artifact %s: %w", row.ID, a.Label, err)
			}
			url := strings.NewReplacer("{id}", row.ID, "{suffix}", a.Suffix).Replace(a.URL)
			out.Artifacts = append(out.Artifacts, Link{Text: a.Label, URL: url, Hidden: !show})
		}

		data.Rows = append(data.Rows, out)
	}
	return data, nil
}

func conditionInput(row rows.DisplayRow) policy.Input {
	in := policy.Input{
		ID:       row.ID,
		Date:     row.Date,
		Files:    row.Files,
		Fields:   make(map[string]string, len(row.Fields)),
		Builders: make(map[string]string, len(row.Builders)),
	}
	for _, f := range row.Fields {
		in.Fields[f.Key] = f.Current
	}
	for _, b := range row.Builders {
		in.Builders[b.Key] = b.Value
	}
	return in
}

func revisionLink(f config.Field, v rows.FieldValue) Link {
	cur := Short(v.Current)
	if !v.Changed() || f.CompareURL == "" {
		return Link{Text: cur}
	}
	url := strings.NewReplacer("{prev}", Short(v.Previous), "{cur}", cur).Replace(f.CompareURL)
	return Link{Text: cur, URL: url}
}

// Short truncates a revision for display.
func Short(rev string) string {
	if len(rev) > ShortLen {
		return rev[:ShortLen]
	}
	return rev
}

// BuilderShort returns the short digest of an image reference:
// "ghcr.io/org/name@sha256:0123456789" becomes "01234567".
func BuilderShort(ref string) string {
	if _, digest, ok := strings.Cut(ref, "@"); ok {
		ref = digest
	}
	if _, hex, ok := strings.Cut(ref, ":"); ok {
		ref = hex
	}
	return Short(ref)
}
