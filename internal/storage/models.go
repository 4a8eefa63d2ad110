package storage

import (
	"encoding/json"
	"time"
)

// Document is a stored record together with store-side metadata.
type Document struct {
	ID         string
	Fields     map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// Condition is an equality filter on a top-level field.
type Condition struct {
	Field string
	Value any
}

// Query selects documents within a collection. Results are ordered ascending
// by the timestamp field named in OrderBy; backends that track creation time
// natively may order by that instead since the two coincide for documents
// written through this package.
type Query struct {
	Where   []Condition
	OrderBy string
	Limit   int
}

// CloneFields returns a shallow copy of fields.
func CloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Bool returns a boolean field.
func (d Document) Bool(field string) (bool, bool) {
	v, ok := d.Fields[field].(bool)
	return v, ok
}

// Time returns a timestamp field. JSON-backed stores hand timestamps back as
// RFC 3339 strings, native stores as time.Time.
func (d Document) Time(field string) (time.Time, bool) {
	switch v := d.Fields[field].(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

// NormalizeJSON round-trips v through encoding/json so values can be compared
// with fields decoded from JSON-backed stores.
func NormalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
