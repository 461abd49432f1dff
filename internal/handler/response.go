package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agenthub/internal/oracle"
	"agenthub/internal/resolver"
	"agenthub/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// ServiceError maps domain errors to HTTP statuses; anything unknown is a 502.
func ServiceError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidConfidence),
		errors.Is(err, service.ErrUnsupportedAsset),
		errors.Is(err, resolver.ErrInvalidValue),
		errors.Is(err, oracle.ErrUnsupportedSymbol):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotAuthorized),
		errors.Is(err, service.ErrManualResolveCrypto):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrStrategistNotFound),
		errors.Is(err, service.ErrStrategyNotFound),
		errors.Is(err, service.ErrSignalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrStrategistExists),
		errors.Is(err, service.ErrAlreadyFollowing),
		errors.Is(err, service.ErrNotFollowing),
		errors.Is(err, service.ErrSignalNotOpen),
		errors.Is(err, resolver.ErrSweepInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrEntryPriceUnavailable):
		status = http.StatusServiceUnavailable
	}
	Error(c, status, err.Error(), nil)
}
