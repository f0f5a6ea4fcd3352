package encode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/project"
)

// JSONEncoder implements the object-array grammar of spec §4.5:
// `[`\n, one compact JSON object per row (nested documents as native
// JSON, not stringified), comma-newline separated, then \n`]`.
type JSONEncoder struct {
	rowCount int64
}

func NewJSONEncoder() *JSONEncoder { return &JSONEncoder{} }

func (e *JSONEncoder) WriteHeader(w io.Writer, targets []string) error {
	if _, err := io.WriteString(w, "[\n"); err != nil {
		return fmt.Errorf("%w: write json open: %v", domain.ErrEncoderFailed, err)
	}
	return nil
}

func (e *JSONEncoder) WriteRow(w io.Writer, fields []project.Field) error {
	if e.rowCount > 0 {
		if _, err := io.WriteString(w, ",\n"); err != nil {
			return fmt.Errorf("%w: write json separator: %v", domain.ErrEncoderFailed, err)
		}
	}

	obj, err := marshalObject(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEncoderFailed, err)
	}
	if _, err := w.Write(obj); err != nil {
		return fmt.Errorf("%w: write json row: %v", domain.ErrEncoderFailed, err)
	}

	e.rowCount++
	return nil
}

func (e *JSONEncoder) WriteFooter(w io.Writer) error {
	if _, err := io.WriteString(w, "\n]"); err != nil {
		return fmt.Errorf("%w: write json close: %v", domain.ErrEncoderFailed, err)
	}
	return nil
}

func (e *JSONEncoder) Close() error { return nil }

// marshalObject renders fields as a compact JSON object, preserving
// the column mapping's emission order (a plain map would reorder keys
// alphabetically).
func marshalObject(fields []project.Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(f.Target)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
