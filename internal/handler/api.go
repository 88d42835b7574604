package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hatewatch/internal/ingest"
	"hatewatch/internal/ml_client"
	"hatewatch/internal/models"
	"hatewatch/internal/progress"
	"hatewatch/internal/service"
	"hatewatch/internal/textutil"
)

// Uploads is the ingestion side used by the handler.
type Uploads interface {
	Upload(ctx context.Context, filename, month string, content io.Reader) (*models.IngestionBatch, error)
	Progress(ctx context.Context, batchID string) (models.Progress, error)
	LatestProgress(ctx context.Context) (models.Progress, error)
}

// Reports is the reporting side used by the handler.
type Reports interface {
	Periods(ctx context.Context) ([]string, error)
	Overview(ctx context.Context, periods []string) (*models.Overview, error)
	Compare(ctx context.Context, first, second string) (*models.Comparison, error)
	Export(ctx context.Context, period string, fn func(models.Tweet) error) error
}

// TextClassifier classifies one ad-hoc text.
type TextClassifier interface {
	ClassifyOne(ctx context.Context, text string) (models.Label, []string, string, error)
}

// Pinger checks the record store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelHealth checks the model sidecar.
type ModelHealth interface {
	HealthCheck(ctx context.Context) (*ml_client.HealthResponse, error)
}

// Handler handles HTTP requests
type Handler struct {
	uploads    Uploads
	reports    Reports
	classifier TextClassifier
	db         Pinger
	ml         ModelHealth
	metrics    http.Handler
	auth       gin.HandlerFunc
	maxUpload  int64
	logger     *zap.Logger
}

// Options carries the optional parts of a Handler.
type Options struct {
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Auth guards upload, progress and export routes when set.
	Auth gin.HandlerFunc
	// MaxUploadBytes caps the request body of uploads; zero means no cap.
	MaxUploadBytes int64
}

// NewHandler creates a new API handler
func NewHandler(uploads Uploads, reports Reports, cls TextClassifier, db Pinger, ml ModelHealth, opts Options, logger *zap.Logger) *Handler {
	return &Handler{
		uploads:    uploads,
		reports:    reports,
		classifier: cls,
		db:         db,
		ml:         ml,
		metrics:    opts.Metrics,
		auth:       opts.Auth,
		maxUpload:  opts.MaxUploadBytes,
		logger:     logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	guarded := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		if h.auth == nil {
			return []gin.HandlerFunc{fn}
		}
		return []gin.HandlerFunc{h.auth, fn}
	}

	api := r.Group("/api/v1")
	{
		// Ingestion
		api.POST("/uploads", guarded(h.Upload)...)
		api.GET("/uploads/:id/progress", guarded(h.GetProgress)...)

		// Ad-hoc classification
		api.POST("/classify", h.Classify)

		// Reporting
		api.GET("/periods", h.ListPeriods)
		api.GET("/reports/overview", h.Overview)
		api.GET("/reports/compare", h.Compare)
		api.GET("/tweets/export", guarded(h.ExportCSV)...)
	}

	r.GET("/upload_progress", guarded(h.LatestProgress)...)
	r.GET("/health", h.HealthCheck)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
}

// Upload accepts a CSV file and a month and queues the file for ingestion.
func (h *Handler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file selected"})
		return
	}
	month := c.PostForm("month")

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	batch, err := h.uploads.Upload(c.Request.Context(), fh.Filename, month, f)
	switch {
	case errors.Is(err, service.ErrInvalidFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file, please upload a CSV"})
		return
	case errors.Is(err, models.ErrInvalidPeriod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month, use e.g. \"June 2024\" or \"2024-06\""})
		return
	case errors.Is(err, ingest.ErrQueueFull), errors.Is(err, ingest.ErrQueueClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion is busy, try again later"})
		return
	case err != nil:
		h.logger.Error("Failed to accept upload", zap.String("file_name", fh.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id":     batch.ID,
		"status":       ingest.StatusQueued,
		"progress_url": "/api/v1/uploads/" + batch.ID + "/progress",
	})
}

// GetProgress returns the progress of one batch.
func (h *Handler) GetProgress(c *gin.Context) {
	p, err := h.uploads.Progress(c.Request.Context(), c.Param("id"))
	if errors.Is(err, progress.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get progress", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get progress"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// LatestProgress serves the single-slot progress view polled by the upload page.
func (h *Handler) LatestProgress(c *gin.Context) {
	p, err := h.uploads.LatestProgress(c.Request.Context())
	if errors.Is(err, progress.ErrNotFound) {
		p = models.IdleProgress()
	} else if err != nil {
		h.logger.Warn("Failed to get latest progress", zap.Error(err))
		p = models.IdleProgress()
	}
	c.JSON(http.StatusOK, gin.H{"percent": p.Percent, "status": p.Status})
}

type classifyRequest struct {
	Text any `json:"text"`
}

// Classify runs one text through both stages.
func (h *Handler) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if textutil.NormalizeValue(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must be a non-empty string"})
		return
	}

	label, categories, cleaned, err := h.classifier.ClassifyOne(c.Request.Context(), req.Text.(string))
	if err != nil {
		h.logger.Error("Failed to classify", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "classification failed"})
		return
	}
	if categories == nil {
		categories = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"label":        label,
		"categories":   categories,
		"cleaned_text": cleaned,
	})
}

// ListPeriods returns every ingested period.
func (h *Handler) ListPeriods(c *gin.Context) {
	periods, err := h.reports.Periods(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list periods", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list periods"})
		return
	}
	if periods == nil {
		periods = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

// Overview summarises the requested periods.
func (h *Handler) Overview(c *gin.Context) {
	ov, err := h.reports.Overview(c.Request.Context(), c.QueryArray("period"))
	if err != nil {
		h.reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

// Compare contrasts two periods.
func (h *Handler) Compare(c *gin.Context) {
	cmp, err := h.reports.Compare(c.Request.Context(), c.Query("first"), c.Query("second"))
	if err != nil {
		h.reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) reportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidPeriod), errors.Is(err, service.ErrSamePeriod):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoData):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to build report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
	}
}

// ExportCSV streams the classified tweets of one period as CSV.
func (h *Handler) ExportCSV(c *gin.Context) {
	period, err := models.NormalizePeriod(c.Query("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=tweets_%s.csv", period))

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write(models.CSVHeader); err != nil {
		h.logger.Error("Failed to write CSV header", zap.Error(err))
		return
	}
	err = h.reports.Export(c.Request.Context(), period, func(t models.Tweet) error {
		return writer.Write(t.CSVRow())
	})
	writer.Flush()
	if err != nil {
		// Headers are already sent; the truncated body is all we can signal.
		h.logger.Error("Failed to export CSV", zap.String("month", period), zap.Error(err))
	}
}

// HealthCheck reports record store and model sidecar health.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	body := gin.H{"service": "hatewatch"}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("Database health check failed", zap.Error(err))
		body["status"] = "unhealthy"
		body["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["database"] = "ok"
	body["status"] = "healthy"

	ml, err := h.ml.HealthCheck(ctx)
	switch {
	case err != nil:
		h.logger.Warn("Model sidecar health check failed", zap.Error(err))
		body["status"] = "degraded"
		body["ml"] = "unreachable"
	case !ml.Stage1Loaded || !ml.Stage2Loaded:
		body["status"] = "degraded"
		body["ml"] = ml
	default:
		body["ml"] = ml
	}

	c.JSON(http.StatusOK, body)
}
