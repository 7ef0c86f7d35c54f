package docstore

import (
	"encoding/json"
	"fmt"
	"math"
)

// Fields is the content of a document. Values are the JSON data model:
// strings, bools, numbers, nested maps and slices. Getters convert the
// numeric representations different stores hand back (int, int64, float64,
// json.Number).
type Fields map[string]any

// Clone copies f deeply enough that the copy shares no maps or slices.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Fields:
		return t.Clone()
	case map[string]any:
		return Fields(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []int:
		return append([]int(nil), t...)
	default:
		return v
	}
}

// Merge returns a copy of f with partial applied on top.
func (f Fields) Merge(partial Fields) Fields {
	out := f.Clone()
	if out == nil {
		out = Fields{}
	}
	for k, v := range partial {
		out[k] = cloneValue(v)
	}
	return out
}

func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the integer at key, or 0 when missing or not numeric.
func (f Fields) Int64(key string) int64 {
	n, _ := toInt64(f[key])
	return n
}

func (f Fields) Int(key string) int {
	return int(f.Int64(key))
}

func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Ints returns an integer list stored at key.
func (f Fields) Ints(key string) []int {
	switch v := f[key].(type) {
	case []int:
		return append([]int(nil), v...)
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			if n, ok := toInt64(item); ok {
				out = append(out, int(n))
			}
		}
		return out
	default:
		return nil
	}
}

// Equal compares the value at key with want using the same numeric
// normalisation as the getters.
func (f Fields) Equal(key string, want any) bool {
	got, ok := f[key]
	if !ok {
		return false
	}
	if gn, ok := toInt64(got); ok {
		if wn, ok := toInt64(want); ok {
			return gn == wn
		}
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		return 0, false
	default:
		return 0, false
	}
}
