package encode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/project"
	"github.com/column-stream/exportd/internal/export/value"
)

// Parquet physical/converted type and encoding enum values, taken from
// the parquet-format Thrift definition (not vendored — just the few
// integer constants this encoder needs).
const (
	ptypeInt64     int32 = 2
	ptypeByteArray int32 = 6

	ctypeUTF8            int32 = 0
	ctypeTimestampMillis int32 = 9

	repetitionOptional int32 = 1

	encodingPlain int32 = 0
	encodingRLE   int32 = 3

	pageTypeDataPage int32 = 0

	compressionUncompressed int32 = 0
)

var parquetMagic = []byte("PAR1")

// parquetColumn is one output column's Parquet schema: its emitted
// name, the Record source attribute that drives its primitive type,
// and a derived physical/converted type pair.
type parquetColumn struct {
	name          string
	source        string
	physicalType  int32
	convertedType *int32
}

func columnsFromMapping(mapping []domain.ColumnMapping) []parquetColumn {
	cols := make([]parquetColumn, len(mapping))
	for i, m := range mapping {
		cols[i] = parquetColumn{name: m.Target, source: m.Source}
		switch m.Source {
		case "id":
			cols[i].physicalType = ptypeInt64
		case "created_at":
			cols[i].physicalType = ptypeInt64
			ct := ctypeTimestampMillis
			cols[i].convertedType = &ct
		default:
			// name, value, metadata: all carried as UTF8 text. The
			// canonical decimal text representation is used for
			// `value` rather than a native DECIMAL physical type —
			// spec §4.7 explicitly allows BYTE_ARRAY for `value`.
			cols[i].physicalType = ptypeByteArray
			ct := ctypeUTF8
			cols[i].convertedType = &ct
		}
	}
	return cols
}

// columnBuffer accumulates one row group's worth of one column's
// values before they are flushed as a single data page.
type columnBuffer struct {
	defined []bool
	values  []value.Value
}

func (b *columnBuffer) append(v value.Value) {
	b.defined = append(b.defined, !v.IsNull())
	b.values = append(b.values, v)
}

func (b *columnBuffer) reset() {
	b.defined = b.defined[:0]
	b.values = b.values[:0]
}

// rowGroupMeta is the footer bookkeeping accumulated as row groups are
// flushed; the encoder keeps at most one row group's raw data resident
// at a time (spec §4.7), but the (small) per-group metadata for every
// group flushed so far is retained for the final footer.
type rowGroupMeta struct {
	numRows    int64
	totalBytes int64
	columns    []columnChunkMeta
}

type columnChunkMeta struct {
	name             string
	physicalType     int32
	fileOffset       int64
	dataPageOffset   int64
	numValues        int64
	uncompressedSize int64
	compressedSize   int64
}

// ParquetEncoder implements the columnar grammar of spec §4.7: genuine
// Parquet structure (PAR1 magic, row groups of PLAIN-encoded column
// chunks, a Thrift compact-protocol footer) built without a
// third-party Parquet library, since none appears as a fetchable
// module anywhere in the retrieval pack (see DESIGN.md). Dictionary
// encoding and RLE value compression are not implemented — every page
// uses PLAIN encoding, which remains valid, interoperable Parquet; the
// simplification is documented rather than silent.
type ParquetEncoder struct {
	columns      []parquetColumn
	rowGroupSize int

	buffers   []columnBuffer
	bufferedN int
	offset    int64
	totalRows int64
	rowGroups []rowGroupMeta
}

// NewParquetEncoder builds the encoder's schema from mapping's source
// attributes. rowGroupSize is fixed at 50,000 rows, the same target as
// cursor.ColumnarBatchSize.
func NewParquetEncoder(mapping []domain.ColumnMapping) *ParquetEncoder {
	cols := columnsFromMapping(mapping)
	return &ParquetEncoder{
		columns:      cols,
		rowGroupSize: 50_000,
		buffers:      make([]columnBuffer, len(cols)),
	}
}

func (e *ParquetEncoder) WriteHeader(w io.Writer, targets []string) error {
	if _, err := w.Write(parquetMagic); err != nil {
		return fmt.Errorf("%w: write parquet magic: %v", domain.ErrEncoderFailed, err)
	}
	e.offset = int64(len(parquetMagic))
	return nil
}

func (e *ParquetEncoder) WriteRow(w io.Writer, fields []project.Field) error {
	if len(fields) != len(e.columns) {
		return fmt.Errorf("%w: parquet row has %d fields, schema has %d columns", domain.ErrEncoderFailed, len(fields), len(e.columns))
	}

	for i, f := range fields {
		e.buffers[i].append(f.Value)
	}
	e.bufferedN++

	if e.bufferedN >= e.rowGroupSize {
		if err := e.flushRowGroup(w); err != nil {
			return err
		}
	}
	return nil
}

func (e *ParquetEncoder) WriteFooter(w io.Writer) error {
	if e.bufferedN > 0 {
		if err := e.flushRowGroup(w); err != nil {
			return err
		}
	}

	footer := e.buildFooterBytes()
	if _, err := w.Write(footer); err != nil {
		return fmt.Errorf("%w: write parquet footer: %v", domain.ErrEncoderFailed, err)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(footer)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: write parquet footer length: %v", domain.ErrEncoderFailed, err)
	}

	if _, err := w.Write(parquetMagic); err != nil {
		return fmt.Errorf("%w: write parquet trailing magic: %v", domain.ErrEncoderFailed, err)
	}
	return nil
}

func (e *ParquetEncoder) Close() error {
	e.buffers = nil
	return nil
}

// flushRowGroup writes the currently buffered rows as one row group's
// worth of column chunks, then resets the buffers — at most one row
// group is resident in memory at any time.
func (e *ParquetEncoder) flushRowGroup(w io.Writer) error {
	numRows := e.bufferedN
	group := rowGroupMeta{numRows: int64(numRows)}

	for i, col := range e.columns {
		chunkStart := e.offset

		pageBytes, err := encodeDataPage(col, &e.buffers[i])
		if err != nil {
			return fmt.Errorf("%w: encode column %q: %v", domain.ErrEncoderFailed, col.name, err)
		}

		header := encodePageHeader(len(pageBytes), numRows)

		if _, err := w.Write(header); err != nil {
			return fmt.Errorf("%w: write page header: %v", domain.ErrEncoderFailed, err)
		}
		if _, err := w.Write(pageBytes); err != nil {
			return fmt.Errorf("%w: write page data: %v", domain.ErrEncoderFailed, err)
		}

		dataPageOffset := e.offset + int64(len(header))
		e.offset += int64(len(header)) + int64(len(pageBytes))

		group.columns = append(group.columns, columnChunkMeta{
			name:             col.name,
			physicalType:     col.physicalType,
			fileOffset:       chunkStart,
			dataPageOffset:   dataPageOffset,
			numValues:        int64(numRows),
			uncompressedSize: int64(len(pageBytes)),
			compressedSize:   int64(len(pageBytes)),
		})
		group.totalBytes += int64(len(header)) + int64(len(pageBytes))

		e.buffers[i].reset()
	}

	e.rowGroups = append(e.rowGroups, group)
	e.totalRows += int64(numRows)
	e.bufferedN = 0
	return nil
}

// encodeDataPage renders one column's buffered values as a Parquet
// DataPage V1 body: a length-prefixed RLE/bit-packed hybrid encoding
// of the definition levels, followed by PLAIN-encoded values for the
// entries that are actually present (nulls contribute no value bytes).
func encodeDataPage(col parquetColumn, buf *columnBuffer) ([]byte, error) {
	var page bytes.Buffer

	levels := make([]int32, len(buf.defined))
	for i, present := range buf.defined {
		if present {
			levels[i] = 1
		}
	}
	levelBytes := encodeBitPackedHybrid(levels, 1)

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(levelBytes)))
	page.Write(lenPrefix[:])
	page.Write(levelBytes)

	for i, present := range buf.defined {
		if !present {
			continue
		}
		if err := writePlainValue(&page, col, buf.values[i]); err != nil {
			return nil, err
		}
	}

	return page.Bytes(), nil
}

func writePlainValue(page *bytes.Buffer, col parquetColumn, v value.Value) error {
	switch col.physicalType {
	case ptypeInt64:
		var i64 int64
		switch col.source {
		case "id":
			i64 = v.Int64
		case "created_at":
			i64 = v.Time.UnixMilli()
		default:
			return fmt.Errorf("unsupported int64 source %q", col.source)
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(i64))
		page.Write(b[:])

	case ptypeByteArray:
		text, err := byteArrayText(v)
		if err != nil {
			return err
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(text)))
		page.Write(lenBuf[:])
		page.WriteString(text)

	default:
		return fmt.Errorf("unsupported physical type %d", col.physicalType)
	}
	return nil
}

// byteArrayText renders a column's value as the UTF8 text stored in a
// BYTE_ARRAY column: scalar text for name/value, compact JSON for
// metadata documents/lists.
func byteArrayText(v value.Value) (string, error) {
	switch v.Kind {
	case value.KindDocument, value.KindList:
		return value.CompactJSON(v)
	default:
		return v.ScalarText(), nil
	}
}

// encodeBitPackedHybrid encodes levels (each in [0, 2^bitWidth)) as a
// sequence of bit-packed-run groups of 8 values, the simplest always-
// valid encoding in the RLE/bit-packed hybrid scheme (spec §4.7 asks
// for RLE "where applicable"; definition levels here are a single bit
// per value, so a pure bit-packed run is both correct and simple).
func encodeBitPackedHybrid(levels []int32, bitWidth int) []byte {
	var out bytes.Buffer

	groups := (len(levels) + 7) / 8
	header := uint64(groups)<<1 | 1
	writeUvarint(&out, header)

	bytesPerGroup := bitWidth // bitWidth=1 => 1 byte per group of 8 values
	for g := 0; g < groups; g++ {
		packed := make([]byte, bytesPerGroup)
		for bit := 0; bit < 8; bit++ {
			idx := g*8 + bit
			if idx >= len(levels) {
				break
			}
			if levels[idx] != 0 {
				packed[0] |= 1 << uint(bit)
			}
		}
		out.Write(packed)
	}

	return out.Bytes()
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			buf.WriteByte(b | 0x80)
		} else {
			buf.WriteByte(b)
			return
		}
	}
}

// encodePageHeader Thrift-encodes a DATA_PAGE PageHeader for a page
// holding numRows values, compressedSize/uncompressedSize bytes long
// (equal, since pages are never compressed independently of the
// stream-level gzip adapter).
func encodePageHeader(pageSize int, numRows int) []byte {
	var buf bytes.Buffer
	w := newThriftWriter(&buf)

	w.writeI32(1, pageTypeDataPage)
	w.writeI32(2, int32(pageSize))
	w.writeI32(3, int32(pageSize))

	w.structFieldHeader(5)
	w.structBegin()
	w.writeI32(1, int32(numRows))
	w.writeI32(2, encodingPlain)
	w.writeI32(3, encodingRLE)
	w.writeI32(4, encodingRLE)
	w.structEnd()

	w.buf.WriteByte(0) // PageHeader struct stop
	return buf.Bytes()
}

// buildFooterBytes Thrift-encodes the FileMetaData: the schema (a root
// element followed by one element per column), the row groups with
// their column chunk metadata, and the total row count.
func (e *ParquetEncoder) buildFooterBytes() []byte {
	var buf bytes.Buffer
	w := newThriftWriter(&buf)

	w.writeI32(1, 1) // version

	w.listHeader(2, ctypeStruct, len(e.columns)+1)
	w.structBegin()
	w.writeString(4, "schema")
	w.writeI32(5, int32(len(e.columns)))
	w.structEnd()
	for _, col := range e.columns {
		w.structBegin()
		w.writeI32(1, col.physicalType)
		w.writeI32(3, repetitionOptional)
		w.writeString(4, col.name)
		if col.convertedType != nil {
			w.writeI32(6, *col.convertedType)
		}
		w.structEnd()
	}

	w.writeI64(3, e.totalRows)

	w.listHeader(4, ctypeStruct, len(e.rowGroups))
	for _, rg := range e.rowGroups {
		w.structBegin()
		w.listHeader(1, ctypeStruct, len(rg.columns))
		for _, cc := range rg.columns {
			w.structBegin()
			w.writeI64(2, cc.fileOffset)

			w.structFieldHeader(3)
			w.structBegin()
			w.writeI32(1, cc.physicalType)
			w.listHeader(2, ctypeI32, 2)
			w.writeRawI32(encodingPlain)
			w.writeRawI32(encodingRLE)
			w.listHeader(3, ctypeBinary, 1)
			w.writeRawBinary([]byte(cc.name))
			w.writeI32(4, compressionUncompressed)
			w.writeI64(5, cc.numValues)
			w.writeI64(6, cc.uncompressedSize)
			w.writeI64(7, cc.compressedSize)
			w.writeI64(9, cc.dataPageOffset)
			w.structEnd()

			w.structEnd()
		}
		w.writeI64(2, rg.totalBytes)
		w.writeI64(3, rg.numRows)
		w.structEnd()
	}

	w.writeString(6, "exportd")

	buf.WriteByte(0) // FileMetaData struct stop
	return buf.Bytes()
}
