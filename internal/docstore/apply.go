package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// normalize converts a value into its JSON data model (map[string]any,
// []any, float64, string, bool, nil) so comparisons behave the same
// regardless of the Go types used by the caller.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

func normalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if _, ok := value.(ArrayUnionValue); ok {
			return nil, fmt.Errorf("field %q: array union is only valid in updates", key)
		}
		n, err := normalize(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out[key] = n
	}
	return out, nil
}

// applyUpdate merges fields into a copy of data, resolving ArrayUnion transforms.
func applyUpdate(data map[string]any, fields map[string]any) (map[string]any, error) {
	out := cloneMap(data)
	for key, value := range fields {
		union, ok := value.(ArrayUnionValue)
		if !ok {
			n, err := normalize(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			out[key] = n
			continue
		}

		existing, _ := out[key].([]any)
		merged := append([]any(nil), existing...)
		for _, candidate := range union.Values {
			n, err := normalize(candidate)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			if !containsValue(merged, n) {
				merged = append(merged, n)
			}
		}
		if merged == nil {
			merged = []any{}
		}
		out[key] = merged
	}
	return out, nil
}

func matches(data map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false, err
		}
		got, present := data[f.Field]
		switch f.Op {
		case OpEqual:
			if !present || !reflect.DeepEqual(got, want) {
				return false, nil
			}
		case OpArrayContains:
			values, ok := got.([]any)
			if !ok || !containsValue(values, want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.Op)
		}
	}
	return true, nil
}

func containsValue(values []any, want any) bool {
	for _, v := range values {
		if reflect.DeepEqual(v, want) {
			return true
		}
	}
	return false
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func sortByID(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

func sameDocuments(a, b []Document) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !reflect.DeepEqual(a[i].Data, b[i].Data) {
			return false
		}
	}
	return true
}
