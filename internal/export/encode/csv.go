package encode

import (
	"fmt"
	"io"
	"strings"

	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/project"
	"github.com/column-stream/exportd/internal/export/value"
)

// CSVEncoder implements the delimited grammar of spec §4.4: a header
// line of target names, one line per record, `,`-joined fields,
// `\n`-terminated, with RFC-4180-style quoting for fields containing a
// comma, quote, or newline.
type CSVEncoder struct{}

func NewCSVEncoder() *CSVEncoder { return &CSVEncoder{} }

func (e *CSVEncoder) WriteHeader(w io.Writer, targets []string) error {
	line := strings.Join(targets, ",") + "\n"
	if _, err := io.WriteString(w, line); err != nil {
		return fmt.Errorf("%w: write csv header: %v", domain.ErrEncoderFailed, err)
	}
	return nil
}

func (e *CSVEncoder) WriteRow(w io.Writer, fields []project.Field) error {
	parts := make([]string, len(fields))
	for i, f := range fields {
		text, err := csvField(f.Value)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrEncoderFailed, err)
		}
		parts[i] = csvEscape(text)
	}

	line := strings.Join(parts, ",") + "\n"
	if _, err := io.WriteString(w, line); err != nil {
		return fmt.Errorf("%w: write csv row: %v", domain.ErrEncoderFailed, err)
	}
	return nil
}

func (e *CSVEncoder) WriteFooter(w io.Writer) error { return nil }

func (e *CSVEncoder) Close() error { return nil }

// csvField renders one field per the per-field rule of spec §4.4:
// scalars as their scalar text, nested documents/lists as their
// canonical compact JSON serialization.
func csvField(v value.Value) (string, error) {
	switch v.Kind {
	case value.KindList, value.KindDocument:
		return value.CompactJSON(v)
	default:
		return v.ScalarText(), nil
	}
}

// csvEscape wraps text in double quotes and doubles interior quotes
// when it contains a comma, quote, or newline; otherwise it is emitted
// unquoted.
func csvEscape(text string) string {
	if !strings.ContainsAny(text, ",\"\n") {
		return text
	}
	escaped := strings.ReplaceAll(text, "\"", "\"\"")
	return "\"" + escaped + "\""
}
