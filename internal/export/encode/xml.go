package encode

import (
	"fmt"
	"io"
	"strings"

	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/project"
	"github.com/column-stream/exportd/internal/export/value"
)

// XMLEncoder implements the hierarchical grammar of spec §4.6: an XML
// 1.0 declaration, a <records> root, one <record> per row whose
// children are the sanitized target names, recursing into nested
// documents/lists with synthetic item_<index> tags for list entries.
type XMLEncoder struct{}

func NewXMLEncoder() *XMLEncoder { return &XMLEncoder{} }

func (e *XMLEncoder) WriteHeader(w io.Writer, targets []string) error {
	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<records>"); err != nil {
		return fmt.Errorf("%w: write xml declaration: %v", domain.ErrEncoderFailed, err)
	}
	return nil
}

func (e *XMLEncoder) WriteRow(w io.Writer, fields []project.Field) error {
	var b strings.Builder
	b.WriteString("<record>")
	for _, f := range fields {
		writeElement(&b, sanitizeTag(f.Target), f.Value)
	}
	b.WriteString("</record>")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("%w: write xml record: %v", domain.ErrEncoderFailed, err)
	}
	return nil
}

func (e *XMLEncoder) WriteFooter(w io.Writer) error {
	if _, err := io.WriteString(w, "</records>"); err != nil {
		return fmt.Errorf("%w: write xml close: %v", domain.ErrEncoderFailed, err)
	}
	return nil
}

func (e *XMLEncoder) Close() error { return nil }

// writeElement recurses through the tagged value model: scalars become
// escaped text content, documents become one child per entry, and
// lists become one child per item with a synthetic item_<index> tag.
func writeElement(b *strings.Builder, tag string, v value.Value) {
	switch v.Kind {
	case value.KindDocument:
		b.WriteString("<" + tag + ">")
		for _, k := range value.SortedKeys(v.Doc) {
			writeElement(b, sanitizeTag(k), v.Doc[k])
		}
		b.WriteString("</" + tag + ">")

	case value.KindList:
		b.WriteString("<" + tag + ">")
		for i, item := range v.List {
			writeElement(b, fmt.Sprintf("item_%d", i), item)
		}
		b.WriteString("</" + tag + ">")

	default:
		b.WriteString("<" + tag + ">")
		b.WriteString(escapeXMLText(v.ScalarText()))
		b.WriteString("</" + tag + ">")
	}
}

// escapeXMLText replaces &, <, >, ", ' with their named entities.
func escapeXMLText(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}

// sanitizeTag rewrites an arbitrary string into a valid XML Name:
// characters outside [A-Za-z0-9_-] become `_`, and a leading digit is
// prefixed with `_`.
func sanitizeTag(name string) string {
	if name == "" {
		return "_"
	}

	var b strings.Builder
	for _, r := range name {
		if isNameChar(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	tag := b.String()
	if c := tag[0]; c >= '0' && c <= '9' {
		tag = "_" + tag
	}
	return tag
}

func isNameChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	default:
		return false
	}
}
