package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is how instants are persisted. It is fixed width so that
// stored timestamps order correctly as strings.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored instant. It also accepts RFC 3339 text.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Normalize converts data to its stored JSON shape: instants become
// TimeLayout strings, numbers become float64, typed slices and maps become
// []any and map[string]any.
func Normalize(data Data) (Data, error) {
	if data == nil {
		return Data{}, nil
	}
	b, err := json.Marshal(prepare(data))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := Data{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

// NormalizeValue converts a single filter value the same way Normalize
// converts document fields.
func NormalizeValue(v any) (any, error) {
	b, err := json.Marshal(prepare(v))
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

func prepare(v any) any {
	switch t := v.(type) {
	case time.Time:
		return FormatTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return FormatTime(*t)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = prepare(x)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = prepare(x)
		}
		return s
	default:
		return v
	}
}

func clone(data Data) Data {
	if data == nil {
		return nil
	}
	out := make(Data, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clone(t)
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = cloneValue(x)
		}
		return s
	default:
		return v
	}
}
