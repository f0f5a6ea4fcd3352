package encode

import "bytes"

// thriftWriter is a minimal Thrift compact-protocol encoder. Parquet's
// footer is Thrift-encoded FileMetaData; rather than pull in a full
// Thrift/Parquet dependency (none of which appears anywhere in the
// retrieval pack as a fetchable module — see DESIGN.md), the columnar
// encoder hand-writes exactly the structures a Parquet footer needs,
// field by field, using this primitive writer.
type thriftWriter struct {
	buf     *bytes.Buffer
	idStack []int16
	lastID  int16
}

func newThriftWriter(buf *bytes.Buffer) *thriftWriter {
	return &thriftWriter{buf: buf}
}

// Compact-protocol field types.
const (
	ctypeBoolTrue  byte = 1
	ctypeBoolFalse byte = 2
	ctypeI16       byte = 4
	ctypeI32       byte = 5
	ctypeI64       byte = 6
	ctypeBinary    byte = 8
	ctypeList      byte = 9
	ctypeStruct    byte = 12
)

// structBegin pushes the enclosing struct's last-written field id so
// nested structs restart their own delta-id sequence.
func (w *thriftWriter) structBegin() {
	w.idStack = append(w.idStack, w.lastID)
	w.lastID = 0
}

// structEnd writes the struct terminator and restores the parent's
// last-written field id.
func (w *thriftWriter) structEnd() {
	w.buf.WriteByte(0)
	n := len(w.idStack)
	w.lastID = w.idStack[n-1]
	w.idStack = w.idStack[:n-1]
}

func (w *thriftWriter) fieldHeader(id int16, ctype byte) {
	delta := id - w.lastID
	if delta > 0 && delta <= 15 {
		w.buf.WriteByte(byte(delta)<<4 | ctype)
	} else {
		w.buf.WriteByte(ctype)
		w.writeVarint(zigzag32(int32(id)))
	}
	w.lastID = id
}

func (w *thriftWriter) writeBool(id int16, v bool) {
	if v {
		w.fieldHeader(id, ctypeBoolTrue)
	} else {
		w.fieldHeader(id, ctypeBoolFalse)
	}
}

func (w *thriftWriter) writeI32(id int16, v int32) {
	w.fieldHeader(id, ctypeI32)
	w.writeVarint(zigzag32(v))
}

func (w *thriftWriter) writeI64(id int16, v int64) {
	w.fieldHeader(id, ctypeI64)
	w.writeVarint(zigzag64(v))
}

func (w *thriftWriter) writeBinary(id int16, v []byte) {
	w.fieldHeader(id, ctypeBinary)
	w.writeVarint(uint64(len(v)))
	w.buf.Write(v)
}

func (w *thriftWriter) writeString(id int16, s string) {
	w.writeBinary(id, []byte(s))
}

// listHeader writes a list field header for a homogeneous list of
// elemType with size elements; callers then write each element inline
// with no further field headers.
func (w *thriftWriter) listHeader(id int16, elemType byte, size int) {
	w.fieldHeader(id, ctypeList)
	if size < 15 {
		w.buf.WriteByte(byte(size)<<4 | elemType)
	} else {
		w.buf.WriteByte(0xF0 | elemType)
		w.writeVarint(uint64(size))
	}
}

func (w *thriftWriter) structFieldHeader(id int16) {
	w.fieldHeader(id, ctypeStruct)
}

// writeRawI32 and writeRawBinary write one element of a list whose
// header was already emitted by listHeader — list elements carry no
// field id of their own, just the bare value encoding.
func (w *thriftWriter) writeRawI32(v int32) {
	w.writeVarint(zigzag32(v))
}

func (w *thriftWriter) writeRawBinary(v []byte) {
	w.writeVarint(uint64(len(v)))
	w.buf.Write(v)
}

func (w *thriftWriter) writeVarint(v uint64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			w.buf.WriteByte(b | 0x80)
		} else {
			w.buf.WriteByte(b)
			return
		}
	}
}

func zigzag32(n int32) uint64 {
	return uint64(uint32((n << 1) ^ (n >> 31)))
}

func zigzag64(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}
