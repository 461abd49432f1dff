package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"agenthub/internal/resolver"
)

type StatsHealer interface {
	RecomputeAll(ctx context.Context) (int, error)
}

type ResolverHandler struct {
	Engine *resolver.Engine
	Stats  StatsHealer
}

func (h *ResolverHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/resolver")
	group.POST("/sweep", h.sweep)
	group.POST("/recompute-stats", h.recomputeStats)
}

func (h *ResolverHandler) sweep(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "resolver unavailable", nil)
		return
	}
	// A client disconnect must not cut a sweep short mid-settlement.
	res, err := h.Engine.Sweep(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, res, nil)
}

func (h *ResolverHandler) recomputeStats(c *gin.Context) {
	if h.Stats == nil {
		Error(c, http.StatusInternalServerError, "stats unavailable", nil)
		return
	}
	n, err := h.Stats.RecomputeAll(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"strategies": n}, nil)
}
