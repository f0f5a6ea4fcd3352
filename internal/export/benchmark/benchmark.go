// Package benchmark implements the Benchmark Harness (spec §4.11):
// for each of the four formats, stream the whole `records` table
// through its encoder to a temporary file with no compression,
// measuring wall time, output size, and peak heap allocation sampled
// with runtime.ReadMemStats, following the teacher's time-based
// instrumentation style in its request-logging middleware.
package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/column-stream/exportd/internal/export/cursor"
	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/encode"
	"github.com/column-stream/exportd/internal/export/project"
)

// dbBeginner mirrors pipeline.dbBeginner; duplicated here rather than
// imported to keep this package's dependency on the database narrow
// and independent of the pipeline package.
type dbBeginner interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

var allFormats = []domain.Format{domain.FormatCSV, domain.FormatJSON, domain.FormatXML, domain.FormatParquet}

// defaultMapping exercises every Record attribute, matching the
// column set a benchmark run should represent regardless of what any
// single export request maps.
var defaultMapping = []domain.ColumnMapping{
	{Source: "id", Target: "id"},
	{Source: "created_at", Target: "created_at"},
	{Source: "name", Target: "name"},
	{Source: "value", Target: "value"},
	{Source: "metadata", Target: "metadata"},
}

// FormatResult is one format's benchmark outcome.
type FormatResult struct {
	Format       domain.Format `json:"format"`
	DurationSecs float64       `json:"durationSeconds"`
	Bytes        int64         `json:"bytes"`
	PeakHeapMB   float64       `json:"peakMegabytes"`
}

// Report is the full benchmark response: the dataset size plus one
// result per format that completed successfully.
type Report struct {
	DatasetRowCount int64          `json:"datasetRowCount"`
	Results         []FormatResult `json:"results"`
}

// Harness runs benchmarks against a database.
type Harness struct {
	db       dbBeginner
	countRow func(ctx context.Context) (int64, error)
	rowLimit int
	logger   *slog.Logger
}

func New(db dbBeginner, countRow func(ctx context.Context) (int64, error), rowLimit int, logger *slog.Logger) *Harness {
	return &Harness{db: db, countRow: countRow, rowLimit: rowLimit, logger: logger}
}

// Run executes all four formats sequentially, continuing on a single
// format's failure (logged and omitted from Results); it returns an
// error only if the row count query fails or every format failed.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	count, err := h.countRow(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count records: %v", domain.ErrBenchmarkFormatFailed, err)
	}

	report := &Report{DatasetRowCount: count}
	var failures int

	for _, format := range allFormats {
		result, err := h.runFormat(ctx, format)
		if err != nil {
			failures++
			h.logger.Warn("benchmark format failed",
				slog.String("format", string(format)),
				slog.Any("error", err),
			)
			continue
		}
		report.Results = append(report.Results, *result)
	}

	if failures == len(allFormats) {
		return nil, fmt.Errorf("%w: all formats failed", domain.ErrBenchmarkFormatFailed)
	}
	return report, nil
}

func (h *Harness) runFormat(ctx context.Context, format domain.Format) (*FormatResult, error) {
	tmp, err := os.CreateTemp("", "export-benchmark-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	enc, err := encode.New(format, defaultMapping)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	batchSize := cursor.DefaultBatchSize
	if format == domain.FormatParquet {
		batchSize = cursor.ColumnarBatchSize
	}

	runtime.GC()
	time.Sleep(10 * time.Millisecond)

	var peakHeap uint64
	sampleHeap := func() {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		if m.HeapAlloc > peakHeap {
			peakHeap = m.HeapAlloc
		}
	}
	sampleHeap()

	start := time.Now()

	sess, err := cursor.Open(ctx, h.db, fmt.Sprintf("benchmark_%s", format), defaultMapping, h.rowLimit, batchSize)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	targets := make([]string, len(defaultMapping))
	for i, col := range defaultMapping {
		targets[i] = col.Target
	}
	if err := enc.WriteHeader(tmp, targets); err != nil {
		return nil, err
	}

	var rows int64
	for {
		batch, err := sess.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		for _, row := range batch {
			fields, err := project.Project(row, defaultMapping)
			if err != nil {
				return nil, err
			}
			if err := enc.WriteRow(tmp, fields); err != nil {
				return nil, err
			}
			rows++
		}
		sampleHeap()
	}

	if err := enc.WriteFooter(tmp); err != nil {
		return nil, err
	}
	if err := sess.Close(ctx); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	sampleHeap()

	info, err := tmp.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat temp file: %w", err)
	}

	return &FormatResult{
		Format:       format,
		DurationSecs: roundTo(duration.Seconds(), 2),
		Bytes:        info.Size(),
		PeakHeapMB:   roundTo(float64(peakHeap)/(1024*1024), 2),
	}, nil
}

func roundTo(v float64, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return float64(int64(v*scale+0.5)) / scale
}
