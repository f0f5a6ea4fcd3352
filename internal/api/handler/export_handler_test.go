package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/column-stream/exportd/internal/export/benchmark"
	"github.com/column-stream/exportd/internal/export/domain"
	"github.com/column-stream/exportd/internal/export/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeHealthChecker struct {
	err error
}

func (f fakeHealthChecker) HealthCheck(ctx context.Context) error { return f.err }

type fakeDownloader struct {
	err        error
	writeBytes []byte
	failAfter  bool // if true, write writeBytes then return err after onBytesSent
}

func (f fakeDownloader) Run(ctx context.Context, job *domain.ExportJob, w io.Writer, onBytesSent func()) error {
	if f.failAfter {
		w.Write(f.writeBytes)
		if onBytesSent != nil {
			onBytesSent()
		}
		return f.err
	}
	if f.err != nil {
		return f.err
	}
	if onBytesSent != nil {
		onBytesSent()
	}
	w.Write(f.writeBytes)
	return nil
}

type fakeBenchmarkRunner struct {
	report *benchmark.Report
	err    error
}

func (f fakeBenchmarkRunner) Run(ctx context.Context) (*benchmark.Report, error) {
	return f.report, f.err
}

func newTestHandler(t *testing.T, health healthChecker, dl downloader, bench benchmarkRunner) (*ExportHandler, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	h := &ExportHandler{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		dbClient:  health,
		registry:  reg,
		driver:    dl,
		benchmark: bench,
	}
	return h, reg
}

func TestExportHandler_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h, _ := newTestHandler(t, fakeHealthChecker{}, nil, nil)
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

		h.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Contains(t, body, "timestamp")
	})

	t.Run("unhealthy", func(t *testing.T) {
		h, _ := newTestHandler(t, fakeHealthChecker{err: errors.New("connection refused")}, nil, nil)
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

		h.Health(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "unhealthy", body["status"])
	})
}

func TestExportHandler_CreateExport(t *testing.T) {
	t.Run("valid request creates a pending job", func(t *testing.T) {
		h, reg := newTestHandler(t, nil, nil, nil)
		body := `{"format":"csv","columns":[{"source":"id","target":"ID"}]}`

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")

		h.CreateExport(c)

		require.Equal(t, http.StatusCreated, w.Code)
		var resp struct {
			ExportID string `json:"exportId"`
			Status   string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp.Status)
		assert.NotEmpty(t, resp.ExportID)

		job, err := reg.Get(resp.ExportID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, job.Status)
	})

	t.Run("malformed JSON returns 400", func(t *testing.T) {
		h, _ := newTestHandler(t, nil, nil, nil)
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(`{not json`))
		c.Request.Header.Set("Content-Type", "application/json")

		h.CreateExport(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("failing Validate returns 400", func(t *testing.T) {
		h, _ := newTestHandler(t, nil, nil, nil)
		body := `{"format":"csv","columns":[]}`

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")

		h.CreateExport(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp["error"], "columns must not be empty")
	})
}

func TestExportHandler_DownloadExport(t *testing.T) {
	t.Run("streams a successful download", func(t *testing.T) {
		h, reg := newTestHandler(t, nil, fakeDownloader{writeBytes: []byte("ID\n1\n")}, nil)
		job := &domain.ExportJob{
			ID:      "job-1",
			Status:  domain.JobStatusPending,
			Request: domain.ExportRequest{Format: domain.FormatCSV, Columns: []domain.ColumnMapping{{Source: "id", Target: "ID"}}},
		}
		reg.Create(job)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/exports/job-1/download", nil)
		c.Params = gin.Params{{Key: "id", Value: "job-1"}}

		h.DownloadExport(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ID\n1\n", w.Body.String())
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="export_job-1.csv"`, w.Header().Get("Content-Disposition"))
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		h, _ := newTestHandler(t, nil, fakeDownloader{}, nil)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/exports/missing/download", nil)
		c.Params = gin.Params{{Key: "id", Value: "missing"}}

		h.DownloadExport(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("failure before headers sent returns JSON error", func(t *testing.T) {
		h, reg := newTestHandler(t, nil, fakeDownloader{err: errors.New("cursor exploded")}, nil)
		job := &domain.ExportJob{
			ID:      "job-2",
			Status:  domain.JobStatusPending,
			Request: domain.ExportRequest{Format: domain.FormatCSV, Columns: []domain.ColumnMapping{{Source: "id", Target: "ID"}}},
		}
		reg.Create(job)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/exports/job-2/download", nil)
		c.Params = gin.Params{{Key: "id", Value: "job-2"}}

		h.DownloadExport(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp["error"], "cursor exploded")
	})

	t.Run("failure after headers sent truncates without a JSON body", func(t *testing.T) {
		h, reg := newTestHandler(t, nil, fakeDownloader{
			err:        errors.New("broken pipe"),
			writeBytes: []byte("ID\n1\n"),
			failAfter:  true,
		}, nil)
		job := &domain.ExportJob{
			ID:      "job-3",
			Status:  domain.JobStatusPending,
			Request: domain.ExportRequest{Format: domain.FormatCSV, Columns: []domain.ColumnMapping{{Source: "id", Target: "ID"}}},
		}
		reg.Create(job)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/exports/job-3/download", nil)
		c.Params = gin.Params{{Key: "id", Value: "job-3"}}

		h.DownloadExport(c)

		assert.Equal(t, "ID\n1\n", w.Body.String())
		var resp map[string]interface{}
		assert.Error(t, json.Unmarshal(w.Body.Bytes(), &resp))
	})
}

func TestExportHandler_Benchmark(t *testing.T) {
	t.Run("returns the report", func(t *testing.T) {
		report := &benchmark.Report{DatasetRowCount: 100, Results: []benchmark.FormatResult{{Format: domain.FormatCSV}}}
		h, _ := newTestHandler(t, nil, nil, fakeBenchmarkRunner{report: report})

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/exports/benchmark", nil)

		h.Benchmark(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp benchmark.Report
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(100), resp.DatasetRowCount)
	})

	t.Run("harness failure returns 500", func(t *testing.T) {
		h, _ := newTestHandler(t, nil, nil, fakeBenchmarkRunner{err: errors.New("all formats failed")})

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/exports/benchmark", nil)

		h.Benchmark(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
