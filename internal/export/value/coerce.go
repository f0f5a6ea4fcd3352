package value

import (
	"encoding/json"
	"fmt"
	"time"
)

// CoerceScalar normalizes one driver-returned scalar (the id,
// created_at, name, or value attribute) into the tagged model. raw is
// whatever lib/pq handed back for the column: int64, string, float64,
// bool, time.Time, []byte, or nil.
func CoerceScalar(attribute string, raw interface{}) (Value, error) {
	if raw == nil {
		return Null, nil
	}

	switch attribute {
	case "id":
		switch v := raw.(type) {
		case int64:
			return Int64(v), nil
		case int32:
			return Int64(int64(v)), nil
		case int:
			return Int64(int64(v)), nil
		default:
			return Value{}, fmt.Errorf("id: unexpected driver type %T", raw)
		}

	case "created_at":
		switch v := raw.(type) {
		case time.Time:
			return Timestamp(v), nil
		case []byte:
			t, err := time.Parse(time.RFC3339Nano, string(v))
			if err != nil {
				return Value{}, fmt.Errorf("created_at: %w", err)
			}
			return Timestamp(t), nil
		default:
			return Value{}, fmt.Errorf("created_at: unexpected driver type %T", raw)
		}

	case "name":
		switch v := raw.(type) {
		case string:
			return Text(v), nil
		case []byte:
			return Text(string(v)), nil
		default:
			return Value{}, fmt.Errorf("name: unexpected driver type %T", raw)
		}

	case "value":
		// lib/pq returns DECIMAL as []byte or string; canonicalize to
		// scale-4 text with trailing zeros preserved per spec §4.3.
		switch v := raw.(type) {
		case []byte:
			return Decimal(canonicalDecimal(string(v))), nil
		case string:
			return Decimal(canonicalDecimal(v)), nil
		case float64:
			return Decimal(canonicalDecimal(fmt.Sprintf("%.4f", v))), nil
		default:
			return Value{}, fmt.Errorf("value: unexpected driver type %T", raw)
		}

	default:
		return Value{}, fmt.Errorf("unrecognized scalar attribute %q", attribute)
	}
}

// canonicalDecimal pads or truncates a decimal text representation to
// exactly 4 fractional digits, preserving the integer part and sign.
func canonicalDecimal(s string) string {
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	intPart, fracPart := s, ""
	for i, c := range s {
		if c == '.' {
			intPart, fracPart = s[:i], s[i+1:]
			break
		}
	}

	if len(fracPart) < 4 {
		fracPart += zeros(4 - len(fracPart))
	} else {
		fracPart = fracPart[:4]
	}

	out := intPart + "." + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

// CoerceMetadata normalizes the raw JSONB bytes of the metadata
// attribute into a nested document Value, recursing through the
// mapping/list/scalar variants per spec §4.3.
func CoerceMetadata(raw interface{}) (Value, error) {
	if raw == nil {
		return Null, nil
	}

	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return Value{}, fmt.Errorf("metadata: unexpected driver type %T", raw)
	}

	if len(data) == 0 {
		return Null, nil
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Value{}, fmt.Errorf("metadata: invalid JSON: %w", err)
	}

	return fromJSON(parsed), nil
}

// fromJSON recursively converts a generic decoded JSON value
// (map[string]interface{}, []interface{}, string, float64, bool, nil)
// into the tagged value model.
func fromJSON(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case bool:
		return Bool(t)
	case float64:
		return numberValue(t)
	case string:
		return Text(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromJSON(item)
		}
		return List(items)
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = fromJSON(item)
		}
		return Document(fields)
	default:
		return Null
	}
}

// numberValue renders a JSON number as an integer when it has no
// fractional part, else as decimal text; metadata numbers are not
// known-scale so they are not forced to scale 4 like the top-level
// value attribute.
func numberValue(f float64) Value {
	if f == float64(int64(f)) {
		return Int64(int64(f))
	}
	return Decimal(fmt.Sprintf("%g", f))
}
