package encode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/column-stream/exportd/internal/export/project"
	"github.com/column-stream/exportd/internal/export/value"
)

func TestXMLEncoder_SmokeRow(t *testing.T) {
	var buf bytes.Buffer
	e := NewXMLEncoder()

	require.NoError(t, e.WriteHeader(&buf, []string{"ID"}))
	require.NoError(t, e.WriteRow(&buf, []project.Field{
		{Target: "ID", Value: value.Int64(7)},
	}))
	require.NoError(t, e.WriteFooter(&buf))

	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<records><record><ID>7</ID></record></records>", buf.String())
}

func TestXMLEncoder_EscapesReservedCharacters(t *testing.T) {
	var buf bytes.Buffer
	e := NewXMLEncoder()

	require.NoError(t, e.WriteHeader(&buf, []string{"Name"}))
	require.NoError(t, e.WriteRow(&buf, []project.Field{
		{Target: "Name", Value: value.Text(`<a> & "b" 'c'`)},
	}))

	assert.Contains(t, buf.String(), "&lt;a&gt; &amp; &quot;b&quot; &apos;c&apos;")
}

func TestXMLEncoder_NestedListGetsItemTags(t *testing.T) {
	var buf bytes.Buffer
	e := NewXMLEncoder()

	require.NoError(t, e.WriteHeader(&buf, []string{"Tags"}))
	require.NoError(t, e.WriteRow(&buf, []project.Field{
		{Target: "Tags", Value: value.List([]value.Value{value.Text("a"), value.Text("b")})},
	}))

	assert.Contains(t, buf.String(), "<Tags><item_0>a</item_0><item_1>b</item_1></Tags>")
}

func TestSanitizeTag_RewritesInvalidCharacters(t *testing.T) {
	assert.Equal(t, "a_b", sanitizeTag("a b"))
	assert.Equal(t, "_1abc", sanitizeTag("1abc"))
	assert.Equal(t, "_", sanitizeTag(""))
	assert.Equal(t, "a-b_c", sanitizeTag("a-b.c"))
}

func TestXMLEncoder_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	e := NewXMLEncoder()

	require.NoError(t, e.WriteHeader(&buf, []string{"ID"}))
	require.NoError(t, e.WriteFooter(&buf))

	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<records></records>", buf.String())
}
