// Package history owns the persisted log of build records.
package history

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Value is a named string attached to a record (a revision or a builder ref).
type Value struct {
	Key   string
	Value string
}

// BuildRecord is one completed build.
type BuildRecord struct {
	ID   string
	Date string
	// Fields holds the tracked revisions in column order.
	Fields []Value
	// Files holds the artifact filename suffixes produced by the build.
	Files    []string
	Builders []Value

	// extra keeps unknown keys so a rewrite does not drop them.
	extra map[string]json.RawMessage
}

// Field returns the value of a tracked field.
func (r BuildRecord) Field(key string) string {
	return lookup(r.Fields, key)
}

// Builder returns the value of a builder reference.
func (r BuildRecord) Builder(key string) string {
	return lookup(r.Builders, key)
}

// Clone returns a deep copy of the record.
func (r BuildRecord) Clone() BuildRecord {
	out := r
	out.Fields = append([]Value(nil), r.Fields...)
	out.Builders = append([]Value(nil), r.Builders...)
	if r.Files != nil {
		out.Files = append([]string{}, r.Files...)
	}
	if r.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(r.extra))
		for k, v := range r.extra {
			out.extra[k] = v
		}
	}
	return out
}

func lookup(values []Value, key string) string {
	for _, v := range values {
		if v.Key == key {
			return v.Value
		}
	}
	return ""
}

// RecordLog is the ordered record sequence, oldest first.
type RecordLog struct {
	Builds     []BuildRecord
	LastUpdate int64
}

// Clone returns a deep copy of the log.
func (l RecordLog) Clone() RecordLog {
	out := RecordLog{LastUpdate: l.LastUpdate}
	if l.Builds != nil {
		out.Builds = make([]BuildRecord, len(l.Builds))
		for i, r := range l.Builds {
			out.Builds[i] = r.Clone()
		}
	}
	return out
}

// Schema maps records to and from their flat JSON object form.
type Schema struct {
	IDKey       string
	FieldKeys   []string
	BuilderKeys []string
}

const (
	dateKey  = "date"
	filesKey = "files"
)

// encode flattens a record into a key-sorted object.
func (s Schema) encode(r BuildRecord) map[string]any {
	obj := make(map[string]any, len(r.extra)+3+len(s.FieldKeys)+len(s.BuilderKeys))
	for k, v := range r.extra {
		obj[k] = v
	}
	obj[s.IDKey] = r.ID
	obj[dateKey] = r.Date
	if r.Files != nil {
		files := append([]string{}, r.Files...)
		sort.Strings(files)
		obj[filesKey] = files
	}
	for _, key := range s.FieldKeys {
		obj[key] = r.Field(key)
	}
	for _, key := range s.BuilderKeys {
		obj[key] = r.Builder(key)
	}
	return obj
}

// decode reads a flat record object. Missing keys decode as empty values.
func (s Schema) decode(obj map[string]json.RawMessage) (BuildRecord, error) {
	var r BuildRecord
	known := map[string]bool{s.IDKey: true, dateKey: true, filesKey: true}

	str := func(key string) (string, error) {
		raw, ok := obj[key]
		if !ok {
			return "", nil
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", fmt.Errorf("key %q: %w", key, err)
		}
		return v, nil
	}

	var err error
	if r.ID, err = str(s.IDKey); err != nil {
		return r, err
	}
	if r.Date, err = str(dateKey); err != nil {
		return r, err
	}
	if raw, ok := obj[filesKey]; ok {
		if err := json.Unmarshal(raw, &r.Files); err != nil {
			return r, fmt.Errorf("key %q: %w", filesKey, err)
		}
	}
	for _, key := range s.FieldKeys {
		known[key] = true
		v, err := str(key)
		if err != nil {
			return r, err
		}
		r.Fields = append(r.Fields, Value{Key: key, Value: v})
	}
	for _, key := range s.BuilderKeys {
		known[key] = true
		v, err := str(key)
		if err != nil {
			return r, err
		}
		r.Builders = append(r.Builders, Value{Key: key, Value: v})
	}

	for k, v := range obj {
		if known[k] {
			continue
		}
		if r.extra == nil {
			r.extra = make(map[string]json.RawMessage)
		}
		r.extra[k] = v
	}
	return r, nil
}
