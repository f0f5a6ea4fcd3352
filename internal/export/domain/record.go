// Package domain defines the data model of the export pipeline: the
// source Record attributes, the column mapping a request carries, the
// validated ExportRequest, and the ExportJob lifecycle derived from it.
package domain

import (
	"fmt"
	"time"
)

// Format names a target serialization. The values are just tags —
// they do not encode behavior.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatXML     Format = "xml"
	FormatParquet Format = "parquet"
)

// Compression names a stream compression scheme. Only gzip is
// recognized; an absent value means no compression.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
)

// recordAttributes is the fixed allow-list of Record attributes a
// ColumnMapping.Source may reference. No other identifier is ever
// interpolated into SQL.
var recordAttributes = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"name":       "name",
	"value":      "value",
	"metadata":   "metadata",
}

// ValidSource reports whether source names a recognized Record
// attribute.
func ValidSource(source string) bool {
	_, ok := recordAttributes[source]
	return ok
}

// ColumnMapping pairs a source Record attribute with the name it is
// emitted under. Order within ExportRequest.Columns is significant: it
// fixes emission order in every format.
type ColumnMapping struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ExportRequest is the validated input to one export invocation.
type ExportRequest struct {
	Format      Format          `json:"format"`
	Columns     []ColumnMapping `json:"columns"`
	Compression Compression     `json:"compression,omitempty"`
}

// Validate checks the invariants spelled out in spec §3: a recognized
// format, a non-empty ordered column list with non-empty source/target
// pairs drawn from the Record allow-list, and an absent-or-gzip
// compression tag.
func (r *ExportRequest) Validate() error {
	switch r.Format {
	case FormatCSV, FormatJSON, FormatXML, FormatParquet:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrRequestInvalid, r.Format)
	}

	if len(r.Columns) == 0 {
		return fmt.Errorf("%w: columns must not be empty", ErrRequestInvalid)
	}

	seenTargets := make(map[string]struct{}, len(r.Columns))
	for i, col := range r.Columns {
		if col.Source == "" {
			return fmt.Errorf("%w: column %d has empty source", ErrRequestInvalid, i)
		}
		if col.Target == "" {
			return fmt.Errorf("%w: column %d has empty target", ErrRequestInvalid, i)
		}
		if !ValidSource(col.Source) {
			return fmt.Errorf("%w: unknown column source %q", ErrRequestInvalid, col.Source)
		}
		if _, dup := seenTargets[col.Target]; dup {
			return fmt.Errorf("%w: duplicate target %q", ErrRequestInvalid, col.Target)
		}
		seenTargets[col.Target] = struct{}{}
	}

	switch r.Compression {
	case CompressionNone, CompressionGzip:
	default:
		return fmt.Errorf("%w: unknown compression %q", ErrRequestInvalid, r.Compression)
	}

	return nil
}

// ContentType returns the HTTP Content-Type for the request's format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatXML:
		return "application/xml"
	case FormatParquet:
		return "application/octet-stream"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the filename extension used in Content-Disposition.
func (f Format) Extension() string {
	return string(f)
}

// JobStatus is one state in the ExportJob lifecycle state machine.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ExportJob is an ExportRequest assigned a fresh identifier and tracked
// through the state machine in spec §4.9.
type ExportJob struct {
	ID        string
	Request   ExportRequest
	Status    JobStatus
	CreatedAt time.Time

	CompletedAt *time.Time
	Error       string

	// ClientDisconnected is set when the failure cause was a broken
	// downstream write rather than a cursor or encoder error.
	ClientDisconnected bool

	// RowsWritten is a running counter updated as the pipeline streams;
	// it is safe to read concurrently with a running export only
	// through the registry, which serializes access.
	RowsWritten int64
}

// CanTransition reports whether moving from the job's current status to
// next is legal per the state machine: pending→in_progress→
// {completed,failed}; completed and failed are terminal.
func (j *ExportJob) CanTransition(next JobStatus) bool {
	switch j.Status {
	case JobStatusPending:
		return next == JobStatusInProgress
	case JobStatusInProgress:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}
