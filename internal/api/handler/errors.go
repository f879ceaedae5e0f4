package handler

import (
	"errors"
	"net/http"

	"github.com/engelke/fashion-hack-2024/internal/api/middleware"
	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/service"
	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var (
		swe *domain.StorageWriteError
		ste *domain.StoreWriteError
	)
	switch {
	case errors.Is(err, domain.ErrEmptyPayload), errors.Is(err, service.ErrMissingOutfitParams):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrModelUnavailable), errors.Is(err, domain.ErrSearchUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &swe):
		return http.StatusBadGateway
	case errors.As(err, &ste):
		return http.StatusInternalServerError
	case domain.IsTransientModelError(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// abortWithError writes {"error": msg, "request_id": id} with the status
// mapped from err.
func abortWithError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error(msg)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg + ": " + err.Error(),
		"request_id": logger.GetFieldString(c.Request.Context(), logger.FieldRequestID),
	})
}
