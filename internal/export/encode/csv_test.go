package encode

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/column-stream/exportd/internal/export/project"
	"github.com/column-stream/exportd/internal/export/value"
)

func TestCSVEncoder_SmokeRow(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVEncoder()

	require.NoError(t, e.WriteHeader(&buf, []string{"ID", "Name"}))
	require.NoError(t, e.WriteRow(&buf, []project.Field{
		{Target: "ID", Value: value.Int64(1)},
		{Target: "Name", Value: value.Text("widget")},
	}))
	require.NoError(t, e.WriteFooter(&buf))

	assert.Equal(t, "ID,Name\n1,widget\n", buf.String())
}

func TestCSVEncoder_EscapesCommaQuoteNewline(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVEncoder()

	require.NoError(t, e.WriteHeader(&buf, []string{"Name"}))
	require.NoError(t, e.WriteRow(&buf, []project.Field{
		{Target: "Name", Value: value.Text("a, \"b\"\nc")},
	}))

	assert.Equal(t, "Name\n\"a, \"\"b\"\"\nc\"\n", buf.String())
}

func TestCSVEncoder_NestedDocumentBecomesJSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVEncoder()

	require.NoError(t, e.WriteHeader(&buf, []string{"Meta"}))
	require.NoError(t, e.WriteRow(&buf, []project.Field{
		{Target: "Meta", Value: value.Document(map[string]value.Value{
			"a": value.Int64(1),
		})},
	}))

	assert.Equal(t, "Meta\n\"{\"\"a\"\":1}\"\n", buf.String())
}

func TestCSVEncoder_NullAndTimestampScalars(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVEncoder()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, e.WriteHeader(&buf, []string{"CreatedAt", "Value"}))
	require.NoError(t, e.WriteRow(&buf, []project.Field{
		{Target: "CreatedAt", Value: value.Timestamp(ts)},
		{Target: "Value", Value: value.Null},
	}))

	assert.Equal(t, "CreatedAt,Value\n"+ts.Format(time.RFC3339Nano)+",\n", buf.String())
}

func TestCSVEncoder_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVEncoder()

	require.NoError(t, e.WriteHeader(&buf, []string{"ID"}))
	require.NoError(t, e.WriteFooter(&buf))

	assert.Equal(t, "ID\n", buf.String())
}
