package mongostore

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/phrazzld/resource-api/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toBSON converts a record into BSON-friendly values. json.Number becomes an
// int64 when it is integral and a float64 otherwise.
func toBSON(r domain.Record) bson.M {
	out := make(bson.M, len(r))
	for k, v := range r {
		out[k] = toBSONValue(v)
	}
	return out
}

func toBSONValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case domain.Record:
		return toBSON(t)
	case map[string]any:
		return toBSON(domain.Record(t))
	case []any:
		out := make(bson.A, len(t))
		for i, vv := range t {
			out[i] = toBSONValue(vv)
		}
		return out
	default:
		return v
	}
}

// fromBSON converts a decoded body back to the representation the JSON
// decoder produces, so records read from every adapter look the same.
func fromBSON(m bson.M) domain.Record {
	out := make(domain.Record, len(m))
	for k, v := range m {
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case int32:
		return json.Number(strconv.FormatInt(int64(t), 10))
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case float64:
		return json.Number(strconv.FormatFloat(t, 'f', -1, 64))
	case bson.M:
		return map[string]any(fromBSON(t))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = fromBSONValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = fromBSONValue(vv)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
