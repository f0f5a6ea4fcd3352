// Package pipeline implements the Export Pipeline Driver (spec §4.9):
// it wires the Cursor Reader, Row Projector, Value Coercer, a Format
// Encoder, and the optional Compression Adapter into one streaming
// write to an HTTP response, enforcing backpressure (nothing buffers
// more than one row-group-sized batch) and translating stage errors
// into job status transitions and lifecycle events.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/jmoiron/sqlx"

	"github.com/column-stream/exportd/internal/export/compress"
	"github.com/column-stream/exportd/internal/export/cursor"
	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/encode"
	"github.com/column-stream/exportd/internal/export/events"
	"github.com/column-stream/exportd/internal/export/project"
	"github.com/column-stream/exportd/internal/export/registry"
)

// dbBeginner matches shared/postgresql.Client's BeginTx signature
// exactly, which is also what cursor.Open requires.
type dbBeginner interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

// session is the subset of *cursor.Session the driver depends on, kept
// narrow so tests can supply a fake without a real database.
type session interface {
	Fetch(ctx context.Context) ([]project.Row, error)
	Close(ctx context.Context) error
}

// Driver runs one export invocation end to end.
type Driver struct {
	db        dbBeginner
	registry  *registry.Registry
	publisher *events.Publisher

	// RowLimit caps every export at this many rows when positive
	// (EXPORT_ROW_LIMIT); zero means unbounded.
	RowLimit int

	// openSession defaults to wrapping cursor.Open; tests override it
	// to exercise the driver without a real database.
	openSession func(ctx context.Context, db dbBeginner, cursorName string, mapping []domain.ColumnMapping, rowLimit, batchSize int) (session, error)
}

func New(db dbBeginner, reg *registry.Registry, publisher *events.Publisher) *Driver {
	return &Driver{
		db:        db,
		registry:  reg,
		publisher: publisher,
		openSession: func(ctx context.Context, db dbBeginner, cursorName string, mapping []domain.ColumnMapping, rowLimit, batchSize int) (session, error) {
			return cursor.Open(ctx, db, cursorName, mapping, rowLimit, batchSize)
		},
	}
}

// Run streams job's export to w. The cursor is named "export_"+job.ID
// and the scan is capped at d.RowLimit (0 = unbounded). onBytesSent is
// invoked once, just before the encoder's header is written to w, so
// the caller (the HTTP handler) can stage its response headers and
// knows an error after that point can no longer produce a well-formed
// JSON error body.
func (d *Driver) Run(ctx context.Context, job *domain.ExportJob, w io.Writer, onBytesSent func()) error {
	// Download is idempotent over pending/completed/failed, and the
	// engine does not deduplicate concurrent downloads of the same job
	// (spec §3): only the invocation that actually moves a job out of
	// pending governs its lifecycle bookkeeping. Every other invocation
	// — a re-download of a terminal job, or a second concurrent
	// download of the same pending/in-progress job — just performs an
	// independent scan/stream and leaves the job's recorded status
	// alone.
	freshRun := d.registry.Transition(job.ID, domain.JobStatusInProgress) == nil
	if freshRun {
		d.publisher.PublishStatus(ctx, job)
	}

	batchSize := cursor.DefaultBatchSize
	if job.Request.Format == domain.FormatParquet {
		batchSize = cursor.ColumnarBatchSize
	}

	sess, err := d.openSession(ctx, d.db, "export_"+job.ID, job.Request.Columns, d.RowLimit, batchSize)
	if err != nil {
		return d.fail(ctx, job, err, false)
	}
	sessClosed := false
	defer func() {
		if !sessClosed {
			sess.Close(ctx)
		}
	}()

	enc, err := encode.New(job.Request.Format, job.Request.Columns)
	if err != nil {
		return d.fail(ctx, job, err, false)
	}
	defer enc.Close()

	sink, err := compress.Sink(w, job.Request.Compression)
	if err != nil {
		return d.fail(ctx, job, err, false)
	}

	targets := make([]string, len(job.Request.Columns))
	for i, col := range job.Request.Columns {
		targets[i] = col.Target
	}

	bytesSent := false
	markSent := func() {
		if !bytesSent {
			bytesSent = true
			if onBytesSent != nil {
				onBytesSent()
			}
		}
	}

	// Headers must be staged on w before the encoder's header write ever
	// reaches it: the first Write() on an http.ResponseWriter freezes
	// whatever headers are set at that moment.
	markSent()
	if err := enc.WriteHeader(sink, targets); err != nil {
		return d.fail(ctx, job, err, false)
	}

	var rowsWritten int64
	yieldThreshold := int64(encode.YieldRowThreshold)
	if job.Request.Format == domain.FormatParquet {
		yieldThreshold = int64(cursor.ColumnarBatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			return d.fail(ctx, job, fmt.Errorf("%w: %v", domain.ErrSinkFailed, ctx.Err()), true)
		default:
		}

		batch, err := sess.Fetch(ctx)
		if err != nil {
			return d.fail(ctx, job, err, false)
		}
		if len(batch) == 0 {
			break
		}

		for _, row := range batch {
			fields, err := project.Project(row, job.Request.Columns)
			if err != nil {
				return d.fail(ctx, job, err, false)
			}

			if err := enc.WriteRow(sink, fields); err != nil {
				return d.fail(ctx, job, err, true)
			}
			markSent()

			rowsWritten++
			if rowsWritten%yieldThreshold == 0 {
				d.registry.SetRowsWritten(job.ID, rowsWritten)
				runtime.Gosched()
			}
		}
	}

	if err := enc.WriteFooter(sink); err != nil {
		return d.fail(ctx, job, err, true)
	}
	if err := sink.Close(); err != nil {
		return d.fail(ctx, job, err, true)
	}

	if err := sess.Close(ctx); err != nil {
		return d.fail(ctx, job, err, false)
	}
	sessClosed = true

	d.registry.SetRowsWritten(job.ID, rowsWritten)
	if freshRun {
		if err := d.registry.Transition(job.ID, domain.JobStatusCompleted); err != nil {
			return err
		}
		d.publisher.PublishStatus(ctx, job)
	}
	return nil
}

// fail marks job failed, tagging a client disconnect when the failure
// came from a sink write after bytes had already been sent, and
// publishes the resulting status. It always returns err so callers can
// return directly.
func (d *Driver) fail(ctx context.Context, job *domain.ExportJob, err error, sinkSide bool) error {
	_ = d.registry.Fail(job.ID, err, sinkSide)
	d.publisher.PublishStatus(ctx, job)
	return err
}
