package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/openslide/buildindex/pkg/engine/rows"
)

// ExportItem matches the JSON structure of one exported build.
type ExportItem struct {
	ID       string            `json:"id"`
	Date     string            `json:"date"`
	Files    []string          `json:"files"`
	Builders map[string]string `json:"builders,omitempty"`
	Fields   []ExportField     `json:"fields"`
}

// ExportField is a tracked revision with its previous differing value.
type ExportField struct {
	Key      string `json:"key"`
	Current  string `json:"current"`
	Previous string `json:"previous,omitempty"`
}

// GenerateCSV writes one line per build with a current and previous
// column for every tracked field.
func GenerateCSV(w io.Writer, fieldKeys []string, in []rows.DisplayRow) error {
	cw := csv.NewWriter(w)

	header := []string{"ID", "Date", "Files"}
	for _, key := range fieldKeys {
		header = append(header, key, key+" (previous)")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range in {
		record := []string{row.ID, row.Date, strings.Join(row.Files, " ")}
		for _, key := range fieldKeys {
			f := row.Field(key)
			record = append(record, f.Current, f.Previous)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// GenerateJSON writes the rows as an indented JSON array.
func GenerateJSON(w io.Writer, in []rows.DisplayRow) error {
	items := make([]ExportItem, 0, len(in))
	for _, row := range in {
		item := ExportItem{
			ID:    row.ID,
			Date:  row.Date,
			Files: row.Files,
		}
		if item.Files == nil {
			item.Files = []string{}
		}
		if len(row.Builders) > 0 {
			item.Builders = make(map[string]string, len(row.Builders))
			for _, b := range row.Builders {
				item.Builders[b.Key] = b.Value
			}
		}
		for _, f := range row.Fields {
			item.Fields = append(item.Fields, ExportField{Key: f.Key, Current: f.Current, Previous: f.Previous})
		}
		items = append(items, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}
