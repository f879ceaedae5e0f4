package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler runs maintenance jobs over stored records. One job runs at a time.
type AdminHandler struct {
	ingestService *service.IngestService

	mu            sync.RWMutex
	running       string
	lastStats     *service.IngestStats
	lastJob       string
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - ingestService: ingest service running the jobs.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(ingestService *service.IngestService) *AdminHandler {
	return &AdminHandler{ingestService: ingestService}
}

// JobRequest limits how many records a job touches. 0 means all.
type JobRequest struct {
	Limit int `json:"limit" binding:"min=0,max=100000"`
}

// JobResponse represents a finished job.
type JobResponse struct {
	Job     string               `json:"job"`
	Message string               `json:"message"`
	Stats   *service.IngestStats `json:"stats,omitempty"`
}

// JobStatusResponse reports the running and last job.
type JobStatusResponse struct {
	Running       string               `json:"running,omitempty"`
	LastJob       string               `json:"last_job,omitempty"`
	LastRunTime   string               `json:"last_run_time,omitempty"`
	LastRunStatus string               `json:"last_run_status,omitempty"`
	LastStats     *service.IngestStats `json:"last_stats,omitempty"`
}

// RetryFailed handles POST /api/v1/admin/retry-failed.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) RetryFailed(c *gin.Context) {
	h.runJob(c, "retry-failed", h.ingestService.RetryFailed)
}

// Reindex handles POST /api/v1/admin/reindex.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) Reindex(c *gin.Context) {
	h.runJob(c, "reindex", h.ingestService.Reindex)
}

func (h *AdminHandler) runJob(c *gin.Context, name string, run func(context.Context, int) (*service.IngestStats, error)) {
	ctx := c.Request.Context()

	var req JobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.mu.Lock()
	if h.running != "" {
		running := h.running
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Job rejected: job=%s, running=%s, client_ip=%s", name, running, c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "Job already running: " + running})
		return
	}
	h.running = name
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting job: job=%s, limit=%d", name, req.Limit)

	// detached from the request context
	jobCtx := logger.FromContext(ctx).WithContext(context.Background())
	start := time.Now()
	stats, err := run(jobCtx, req.Limit)
	duration := time.Since(start)

	h.mu.Lock()
	h.running = ""
	h.lastJob = name
	h.lastStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{logger.FieldDurationMs: duration.Milliseconds()}).
			Error(ctx, "Job failed: job=%s, error=%v", name, err)
		abortWithError(c, "Job failed", err)
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
		logger.FieldCount:      stats.TotalItems,
	}).Info(ctx, "Job completed: job=%s, completed=%d, analysis_failed=%d, failed=%d, skipped=%d",
		name, stats.CompletedItems, stats.AnalysisFailed, stats.FailedItems, stats.SkippedItems)

	c.JSON(http.StatusOK, JobResponse{Job: name, Message: "Job completed", Stats: stats})
}

// GetStatus handles GET /api/v1/admin/status.
func (h *AdminHandler) GetStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := JobStatusResponse{
		Running:       h.running,
		LastJob:       h.lastJob,
		LastRunStatus: h.lastRunStatus,
		LastStats:     h.lastStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
