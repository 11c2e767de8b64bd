// Package rows projects a retained record log into display rows.
package rows

import "github.com/openslide/buildindex/pkg/engine/history"

// FieldValue is one tracked field of a row.
type FieldValue struct {
	Key     string
	Current string
	// Previous holds the preceding row's value when it differs, else "".
	Previous string
}

// Changed reports whether the field differs from the preceding row.
func (f FieldValue) Changed() bool {
	return f.Previous != ""
}

// DisplayRow is a record plus its per-field diff against the preceding
// retained record.
type DisplayRow struct {
	ID       string
	Date     string
	Files    []string
	Builders []history.Value
	Fields   []FieldValue
}

// Field returns the named field, or a zero value.
func (r DisplayRow) Field(key string) FieldValue {
	for _, f := range r.Fields {
		if f.Key == key {
			return f
		}
	}
	return FieldValue{Key: key}
}

// Project builds one row per record in log order. The first row never
// has a previous value; records purged from the log are not a baseline.
func Project(builds []history.BuildRecord, fieldKeys []string) []DisplayRow {
	out := make([]DisplayRow, 0, len(builds))

	var previous *history.BuildRecord
	for i := range builds {
		record := builds[i]
		row := DisplayRow{
			ID:       record.ID,
			Date:     record.Date,
			Files:    append([]string(nil), record.Files...),
			Builders: append([]history.Value(nil), record.Builders...),
			Fields:   make([]FieldValue, 0, len(fieldKeys)),
		}
		for _, key := range fieldKeys {
			fv := FieldValue{Key: key, Current: record.Field(key)}
			if previous != nil {
				if prev := previous.Field(key); prev != fv.Current {
					fv.Previous = prev
				}
			}
			row.Fields = append(row.Fields, fv)
		}
		out = append(out, row)
		previous = &builds[i]
	}
	return out
}

// Reverse returns the rows newest first without modifying the input.
func Reverse(in []DisplayRow) []DisplayRow {
	out := make([]DisplayRow, len(in))
	for i, r := range in {
		out[len(in)-1-i] = r
	}
	return out
}
