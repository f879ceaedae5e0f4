package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/service"
	"github.com/gin-gonic/gin"
)

const defaultMaxUploadBytes = 20 << 20

// ImageHandler handles image upload, lookup and re-analysis.
type ImageHandler struct {
	ingestService  *service.IngestService
	searchService  *service.SearchService
	maxUploadBytes int64
}

// NewImageHandler creates a new image handler.
// Parameters:
//   - ingestService: service storing and analyzing uploads.
//   - searchService: service reading records and signing URLs.
//   - maxUploadBytes: upload size limit; zero or less uses 20 MiB.
// Returns:
//   - *ImageHandler: initialized handler.
func NewImageHandler(ingestService *service.IngestService, searchService *service.SearchService, maxUploadBytes int64) *ImageHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &ImageHandler{
		ingestService:  ingestService,
		searchService:  searchService,
		maxUploadBytes: maxUploadBytes,
	}
}

// UploadResponse is returned by Upload and Analyze.
type UploadResponse struct {
	ImageID    string                  `json:"image_id"`
	StorageKey string                  `json:"storage_key"`
	URL        string                  `json:"url"`
	Record     *domain.AttributeRecord `json:"record,omitempty"`
	Reused     bool                    `json:"reused,omitempty"`
	Error      string                  `json:"error,omitempty"`
	IndexError string                  `json:"index_error,omitempty"`
}

func newUploadResponse(r *service.IngestResult) UploadResponse {
	resp := UploadResponse{
		ImageID:    r.ImageID,
		StorageKey: r.StorageKey,
		URL:        r.StorageAddress,
		Record:     r.Record,
		Reused:     r.Reused,
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	if r.IndexErr != nil {
		resp.IndexError = r.IndexErr.Error()
	}
	return resp
}

// Upload handles POST /api/v1/images with a multipart "file" field.
// The image is stored and analyzed; a failed analysis still answers 201
// with the failed record.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImageHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", h.maxUploadBytes)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing multipart field 'file': " + err.Error()})
		return
	}
	if fh.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", h.maxUploadBytes)})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open upload: " + err.Error()})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	logger.CtxInfo(ctx, "Image upload received: filename=%s, size=%d", fh.Filename, len(data))

	result, err := h.ingestService.Ingest(ctx, data, fh.Filename)
	if err != nil {
		abortWithError(c, "Ingestion failed", err)
		return
	}
	c.JSON(http.StatusCreated, newUploadResponse(result))
}

// Get handles GET /api/v1/images/:id.
func (h *ImageHandler) Get(c *gin.Context) {
	rec, err := h.searchService.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, "Failed to get image", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// List handles GET /api/v1/images?status=complete&limit=20&offset=0.
func (h *ImageHandler) List(c *gin.Context) {
	status := domain.RecordStatus(c.DefaultQuery("status", string(domain.RecordStatusComplete)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status: " + string(status)})
		return
	}

	result, err := h.searchService.ListRecords(c.Request.Context(), status, limit, offset)
	if err != nil {
		abortWithError(c, "Failed to list images", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Analyze handles POST /api/v1/images/:id/analyze. An image that already
// has a complete record returns it unchanged.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImageHandler) Analyze(c *gin.Context) {
	result, err := h.ingestService.RetryAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, "Analysis failed", err)
		return
	}
	c.JSON(http.StatusOK, newUploadResponse(result))
}

// SignedURL handles GET /api/v1/images/:id/signed-url?ttl=15m.
func (h *ImageHandler) SignedURL(c *gin.Context) {
	var ttl time.Duration
	if raw := c.Query("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ttl: " + raw})
			return
		}
		ttl = d
	}

	signed, err := h.searchService.SignedURL(c.Request.Context(), c.Param("id"), ttl)
	if err != nil {
		abortWithError(c, "Failed to sign URL", err)
		return
	}
	c.JSON(http.StatusOK, signed)
}
