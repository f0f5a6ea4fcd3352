// Package encode implements the four format encoders (spec §4.4-§4.7)
// as one capability, selected once by a factory keyed on the requested
// format — the "runtime-polymorphic format encoders" design note in
// spec §9, rather than string dispatch scattered through the pipeline.
package encode

import (
	"fmt"
	"io"

	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/project"
)

// Encoder is the common capability every format implements. WriteHeader
// and WriteFooter are called exactly once each, bracketing any number
// of WriteRow calls. Close releases any encoder-owned resources (e.g.
// the Parquet encoder's in-memory row group buffer) but never closes
// the underlying sink — the Compression Adapter or the pipeline driver
// owns that.
type Encoder interface {
	WriteHeader(w io.Writer, targets []string) error
	WriteRow(w io.Writer, fields []project.Field) error
	WriteFooter(w io.Writer) error
	Close() error
}

// New returns the Encoder for format, given the job's column mapping
// (the Parquet encoder needs source attribute names up front to choose
// primitive column types before the first row arrives; the three text
// encoders ignore mapping beyond the header, which the driver supplies
// separately via WriteHeader).
func New(format domain.Format, mapping []domain.ColumnMapping) (Encoder, error) {
	switch format {
	case domain.FormatCSV:
		return NewCSVEncoder(), nil
	case domain.FormatJSON:
		return NewJSONEncoder(), nil
	case domain.FormatXML:
		return NewXMLEncoder(), nil
	case domain.FormatParquet:
		return NewParquetEncoder(mapping), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", domain.ErrEncoderFailed, format)
	}
}

// YieldRowThreshold is the row count after which text encoders should
// cooperatively yield control so other exports and the health endpoint
// stay responsive (spec §4.4, §5).
const YieldRowThreshold = 10_000
