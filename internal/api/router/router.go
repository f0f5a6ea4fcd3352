package router

import (
	"github.com/gin-gonic/gin"

	"github.com/column-stream/exportd/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	h := handler.NewExportHandler(deps)

	r.GET("/health", h.Health)

	exports := r.Group("/exports")
	{
		exports.POST("", h.CreateExport)
		// registered before the parameterized download route so "benchmark"
		// is never captured as an :id value.
		exports.GET("/benchmark", h.Benchmark)
		exports.GET("/:id/download", h.DownloadExport)
	}

	return r
}
