package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ScalarText(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null, ""},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"int64", Int64(42), "42"},
		{"decimal", Decimal("10.5000"), "10.5000"},
		{"timestamp", Timestamp(ts), ts.Format(time.RFC3339Nano)},
		{"text", Text("hello"), "hello"},
		{"list has no scalar text", List([]Value{Int64(1)}), ""},
		{"document has no scalar text", Document(map[string]Value{"a": Int64(1)}), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.ScalarText())
		})
	}
}

func TestValue_IsNull(t *testing.T) {
	assert.True(t, Null.IsNull())
	assert.False(t, Int64(0).IsNull())
}

func TestValue_MarshalJSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null, "null"},
		{"bool", Bool(true), "true"},
		{"int64", Int64(7), "7"},
		{"decimal stays quoted text", Decimal("10.5000"), `"10.5000"`},
		{"timestamp", Timestamp(ts), `"` + ts.Format(time.RFC3339Nano) + `"`},
		{"text", Text("hi"), `"hi"`},
		{"list", List([]Value{Int64(1), Int64(2)}), "[1,2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.v.MarshalJSON()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestValue_MarshalJSON_Document(t *testing.T) {
	doc := Document(map[string]Value{"b": Int64(2), "a": Int64(1)})
	b, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(b))
}

func TestSortedKeys(t *testing.T) {
	doc := map[string]Value{"z": Null, "a": Null, "m": Null}
	assert.Equal(t, []string{"a", "m", "z"}, SortedKeys(doc))
}

func TestSortedKeys_Empty(t *testing.T) {
	assert.Empty(t, SortedKeys(nil))
}

func TestCompactJSON(t *testing.T) {
	doc := Document(map[string]Value{"a": Int64(1)})
	s, err := CompactJSON(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, s)
}

func TestCompactJSON_List(t *testing.T) {
	s, err := CompactJSON(List([]Value{Text("x"), Int64(2)}))
	require.NoError(t, err)
	assert.Equal(t, `["x",2]`, s)
}
