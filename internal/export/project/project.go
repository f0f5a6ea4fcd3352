// Package project implements the Row Projector (spec §4.2): a pure
// mapping from one raw database row to an ordered sequence of
// (target, value) pairs following a job's column mapping.
package project

import (
	"fmt"

	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/value"
)

// Row is one raw record as returned by the cursor reader: attribute
// name (from the Record allow-list) to the driver's raw scalar value.
type Row map[string]interface{}

// Field is one projected (target, value) pair, in mapping order.
type Field struct {
	Target string
	Value  value.Value
}

// Project maps row to an ordered list of fields per mapping. It is a
// pure function allocating exactly one slot per column; unknown
// sources are rejected at request-validation time (domain.ExportRequest
// .Validate), so this function is total over valid mappings.
func Project(row Row, mapping []domain.ColumnMapping) ([]Field, error) {
	fields := make([]Field, len(mapping))

	for i, col := range mapping {
		raw, present := row[col.Source]
		if !present {
			fields[i] = Field{Target: col.Target, Value: value.Null}
			continue
		}

		var v value.Value
		var err error
		if col.Source == "metadata" {
			v, err = value.CoerceMetadata(raw)
		} else {
			v, err = value.CoerceScalar(col.Source, raw)
		}
		if err != nil {
			return nil, fmt.Errorf("project column %q (%q): %w", col.Target, col.Source, err)
		}

		fields[i] = Field{Target: col.Target, Value: v}
	}

	return fields, nil
}
