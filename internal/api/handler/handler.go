package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/column-stream/exportd/internal/export/benchmark"
	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/events"
	"github.com/column-stream/exportd/internal/export/pipeline"
	"github.com/column-stream/exportd/internal/export/registry"
	"github.com/column-stream/exportd/shared/postgresql"
	"github.com/column-stream/exportd/shared/rabbitmq"
)

// Dependencies holds everything the export handler needs, wired once in
// main and shared across requests.
type Dependencies struct {
	Logger       *slog.Logger
	DBClient     *postgresql.Client
	RabbitClient *rabbitmq.Client
	Registry     *registry.Registry
	Driver       *pipeline.Driver
	Publisher    *events.Publisher
	Benchmark    *benchmark.Harness
}

// healthChecker is the subset of *postgresql.Client the health endpoint
// depends on, kept narrow so tests can substitute a fake without a live
// database, the same pattern pipeline.dbBeginner uses for
// *postgresql.Client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// downloader is the subset of *pipeline.Driver the download endpoint
// depends on.
type downloader interface {
	Run(ctx context.Context, job *domain.ExportJob, w io.Writer, onBytesSent func()) error
}

// benchmarkRunner is the subset of *benchmark.Harness the benchmark
// endpoint depends on.
type benchmarkRunner interface {
	Run(ctx context.Context) (*benchmark.Report, error)
}

// ExportHandler handles the export HTTP surface: health, job creation,
// streamed download, and the benchmark report.
type ExportHandler struct {
	logger       *slog.Logger
	dbClient     healthChecker
	rabbitClient *rabbitmq.Client
	registry     *registry.Registry
	driver       downloader
	publisher    *events.Publisher
	benchmark    benchmarkRunner
}

// NewExportHandler creates a new ExportHandler instance.
func NewExportHandler(deps *Dependencies) *ExportHandler {
	return &ExportHandler{
		logger:       deps.Logger,
		dbClient:     deps.DBClient,
		rabbitClient: deps.RabbitClient,
		registry:     deps.Registry,
		driver:       deps.Driver,
		publisher:    deps.Publisher,
		benchmark:    deps.Benchmark,
	}
}
