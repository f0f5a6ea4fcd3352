package dto

import "github.com/column-stream/exportd/internal/export/domain"

// CreateExportRequest is the POST /exports body, decoded straight into
// domain.ExportRequest once gin has bound the JSON.
type CreateExportRequest struct {
	Format      domain.Format          `json:"format" binding:"required"`
	Columns     []domain.ColumnMapping `json:"columns" binding:"required"`
	Compression domain.Compression     `json:"compression"`
}

func (r CreateExportRequest) ToDomain() domain.ExportRequest {
	return domain.ExportRequest{
		Format:      r.Format,
		Columns:     r.Columns,
		Compression: r.Compression,
	}
}

// CreateExportResponse is the 201 body returned by POST /exports.
type CreateExportResponse struct {
	ExportID string `json:"exportId"`
	Status   string `json:"status"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
