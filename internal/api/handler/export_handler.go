package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/column-stream/exportd/internal/api/dto"
	"github.com/column-stream/exportd/internal/export/domain"
)

// Health reports service liveness, including a database round trip.
func (h *ExportHandler) Health(c *gin.Context) {
	if err := h.dbClient.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// CreateExport validates the request, registers a job, and returns its
// id. The export itself only runs once the client opens the download.
func (h *ExportHandler) CreateExport(c *gin.Context) {
	var body dto.CreateExportRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	req := body.ToDomain()
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	job := &domain.ExportJob{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now(),
	}
	h.registry.Create(job)

	h.logger.Info("export job created",
		"job_id", job.ID,
		"format", job.Request.Format,
	)

	c.JSON(http.StatusCreated, dto.CreateExportResponse{
		ExportID: job.ID,
		Status:   string(job.Status),
	})
}

// DownloadExport streams a created job's output. The pipeline driver
// writes directly to the response; once the first byte has gone out, a
// later failure can only truncate the body, never flip to a JSON error.
func (h *ExportHandler) DownloadExport(c *gin.Context) {
	id := c.Param("id")
	job, err := h.registry.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	headersSent := false
	sendHeaders := func() {
		headersSent = true
		c.Header("Content-Type", job.Request.Format.ContentType())
		c.Header("Content-Disposition", fmt.Sprintf(
			`attachment; filename="export_%s.%s"`, job.ID, job.Request.Format.Extension(),
		))
		if job.Request.Compression == domain.CompressionGzip {
			c.Header("Content-Encoding", "gzip")
		}
		c.Writer.WriteHeader(http.StatusOK)
	}

	err = h.driver.Run(c.Request.Context(), job, c.Writer, sendHeaders)
	if err != nil {
		h.logger.Error("export download failed",
			"job_id", job.ID,
			"error", err,
			"headers_sent", headersSent,
		)
		if !headersSent {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		}
		return
	}
}

// Benchmark runs the fixed-format benchmark suite against the live
// dataset and returns per-format timing, size, and peak-memory figures.
func (h *ExportHandler) Benchmark(c *gin.Context) {
	report, err := h.benchmark.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
