package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Reserved record fields. They are maintained by the repository and are never
// taken from client input.
const (
	FieldID        = "id"
	FieldOwnerID   = "ownerId"
	FieldVersion   = "version"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// reservedFields is the set of fields a client can never write.
var reservedFields = map[string]struct{}{
	FieldID:        {},
	FieldOwnerID:   {},
	FieldVersion:   {},
	FieldCreatedAt: {},
	FieldUpdatedAt: {},
}

// IsReservedField reports whether name is maintained by the repository.
func IsReservedField(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// Record is one persisted business entity: a flat mapping of field name to a
// primitive, array or object value. Every stored record carries an id and a
// version; owned records also carry an ownerId.
type Record map[string]any

// ID returns the record identifier in its canonical string form.
func (r Record) ID() string {
	return FormatID(r[FieldID])
}

// OwnerID returns the owning identity id, or "" for public records.
func (r Record) OwnerID() string {
	v, ok := r[FieldOwnerID]
	if !ok || v == nil {
		return ""
	}
	return FormatID(v)
}

// Version returns the optimistic concurrency version. Records written before
// versioning existed report 0.
func (r Record) Version() int64 {
	n, ok := Number(r[FieldVersion])
	if !ok {
		return 0
	}
	return int64(n)
}

// Clone returns a deep copy so callers can mutate without touching the snapshot
// the record came from.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Record:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Touch stamps updatedAt (and createdAt when absent) with now.
func (r Record) Touch(now time.Time) {
	ts := now.UTC().Format(time.RFC3339Nano)
	if _, ok := r[FieldCreatedAt]; !ok {
		r[FieldCreatedAt] = ts
	}
	r[FieldUpdatedAt] = ts
}

// FormatID renders an id value in canonical string form. Numeric ids decoded
// from JSON or BSON (json.Number, float64, int32, int64) all format the same
// way so a path segment "3" matches a stored 3.
func FormatID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Number converts any numeric representation produced by the JSON and BSON
// decoders to float64. Strings are not numbers.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
