// Package value implements the tagged value model every format
// encoder pattern-matches against, and the coercer that is the single
// place interpreting raw database driver values into it.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Kind tags the variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindDecimal
	KindTimestamp
	KindText
	KindList
	KindDocument
)

// Value is a sum over {null, bool, int64, decimal-as-text, timestamp,
// text, ordered list, nested document}. Decimal values are carried as
// text rather than a floating point representation: the top-level value
// attribute in its canonical scale-4 form (trailing zeros preserved),
// fractional metadata numbers in their shortest text form, so every
// encoder emits the same digits.
type Value struct {
	Kind    Kind
	Bool    bool
	Int64   int64
	Decimal string
	Time    time.Time
	Text    string
	List    []Value
	Doc     map[string]Value
}

// Null is the zero Value of kind KindNull.
var Null = Value{Kind: KindNull}

func Bool(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func Int64(i int64) Value     { return Value{Kind: KindInt64, Int64: i} }
func Decimal(s string) Value  { return Value{Kind: KindDecimal, Decimal: s} }
func Timestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }
func Text(s string) Value     { return Value{Kind: KindText, Text: s} }
func List(items []Value) Value {
	return Value{Kind: KindList, List: items}
}
func Document(fields map[string]Value) Value {
	return Value{Kind: KindDocument, Doc: fields}
}

// IsNull reports whether v is the null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Text encodings shared by all three text formats: the scalar rule of
// spec §4.4 item 1 (decimal text / ISO-8601 / true-false / empty).
func (v Value) ScalarText() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt64:
		return fmt.Sprintf("%d", v.Int64)
	case KindDecimal:
		return v.Decimal
	case KindTimestamp:
		return v.Time.Format(time.RFC3339Nano)
	case KindText:
		return v.Text
	default:
		// Nested documents/lists have no scalar text; callers must
		// check Kind before calling ScalarText for those.
		return ""
	}
}

// MarshalJSON renders the value the way the Object-Array (JSON)
// encoder needs it: nested documents/lists as native JSON, integers,
// booleans and null as native JSON, decimals as quoted decimal text,
// and timestamps and text as strings per ScalarText.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt64:
		return json.Marshal(v.Int64)
	case KindDecimal:
		return json.Marshal(v.Decimal)
	case KindTimestamp:
		return json.Marshal(v.Time.Format(time.RFC3339Nano))
	case KindText:
		return json.Marshal(v.Text)
	case KindList:
		return json.Marshal(v.List)
	case KindDocument:
		return json.Marshal(orderedDoc(v.Doc))
	default:
		return []byte("null"), nil
	}
}

// orderedDoc renders a nested document with deterministic key order so
// repeated encodes of the same row produce byte-identical output (the
// idempotence property in spec §8). json.Marshal on a map already
// sorts keys, but we route through this helper so a change of nested
// representation later keeps the guarantee visible at the type level.
func orderedDoc(doc map[string]Value) map[string]Value {
	return doc
}

// SortedKeys returns the keys of a document in a stable order, used by
// the XML encoder, which must iterate a map deterministically.
func SortedKeys(doc map[string]Value) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CompactJSON renders v as compact JSON text, used by the CSV encoder
// to stringify nested documents (spec §4.4 item 2).
func CompactJSON(v Value) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
