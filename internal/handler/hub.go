package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agenthub/internal/models"
	"agenthub/internal/repository"
	"agenthub/internal/service"
)

// HubHandler exposes strategist, strategy, signal and follower operations.
// The caller identity comes from the X-Owner header; verifying it is left to the gateway.
type HubHandler struct {
	Service *service.HubService
	Repo    repository.Repository
}

func (h *HubHandler) Register(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.POST("/strategists", h.registerStrategist)
	api.GET("/strategists/:owner", h.getStrategist)

	api.GET("/strategies", h.listStrategies)
	api.GET("/leaderboard", h.leaderboard)
	api.POST("/strategies", h.createStrategy)
	api.GET("/strategies/:id", h.getStrategy)
	api.DELETE("/strategies/:id", h.deleteStrategy)
	api.GET("/strategies/:id/signals", h.listSignals)
	api.GET("/strategies/:id/follow", h.isFollowing)
	api.POST("/strategies/:id/follow", h.follow)
	api.DELETE("/strategies/:id/follow", h.unfollow)

	api.GET("/signals", h.listAllSignals)
	api.POST("/signals", h.publishSignal)
	api.GET("/signals/:id", h.getSignal)
	api.POST("/signals/:id/cancel", h.cancelSignal)
	api.POST("/signals/:id/resolve", h.resolveSignal)

	api.GET("/activities", h.listActivities)
}

func (h *HubHandler) ready(c *gin.Context) bool {
	if h.Service == nil || h.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return false
	}
	return true
}

func (h *HubHandler) requireOwner(c *gin.Context) (string, bool) {
	owner := ownerFrom(c)
	if owner == "" {
		Error(c, http.StatusUnauthorized, "X-Owner header required", nil)
		return "", false
	}
	return owner, true
}

type registerStrategistRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *HubHandler) registerStrategist(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req registerStrategistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid json body", nil)
		return
	}
	item, err := h.Service.RegisterStrategist(c.Request.Context(), owner, req.DisplayName)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, item)
}

func (h *HubHandler) getStrategist(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	item, err := h.Service.GetStrategist(c.Request.Context(), c.Param("owner"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *HubHandler) listStrategies(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	params := repository.ListStrategiesParams{
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
		Owner:      strQueryPtr(c, "owner"),
		BaseMarket: strQueryPtr(c, "base_market"),
		PublicOnly: boolQueryDefault(c, "public_only", false),
	}
	if raw := strings.TrimSpace(c.Query("market_kind")); raw != "" {
		kind, ok := models.ParseMarketKind(raw)
		if !ok {
			Error(c, http.StatusBadRequest, "invalid market_kind", nil)
			return
		}
		params.MarketKind = &kind
	}
	items, err := h.Repo.ListStrategies(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	limit := repository.NormalizeLimit(params.Limit, 50)
	Ok(c, items, paginationMeta(limit, repository.NormalizeOffset(params.Offset), len(items)))
}

func (h *HubHandler) createStrategy(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req service.StrategyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid json body", nil)
		return
	}
	item, err := h.Service.CreateStrategy(c.Request.Context(), owner, req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, item)
}

func (h *HubHandler) getStrategy(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Service.GetStrategy(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *HubHandler) deleteStrategy(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.Service.DeleteStrategy(c.Request.Context(), owner, id); err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, map[string]any{"deleted": id}, nil)
}

func (h *HubHandler) listSignals(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	items, err := h.Service.ListSignals(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filtered := items[:0]
		for _, sig := range items {
			if string(sig.Status) == strings.ToLower(status) {
				filtered = append(filtered, sig)
			}
		}
		items = filtered
	}
	Ok(c, items, map[string]any{"returned": len(items)})
}

func (h *HubHandler) leaderboard(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	limit := repository.NormalizeLimit(intQuery(c, "limit", 10), 10)
	items, err := h.Service.TopStrategies(c.Request.Context(), limit)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "returned": len(items)})
}

// listAllSignals spans every strategy. Without a status filter it is the recent feed.
func (h *HubHandler) listAllSignals(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	limit := repository.NormalizeLimit(intQuery(c, "limit", 50), 50)
	offset := repository.NormalizeOffset(intQuery(c, "offset", 0))
	var (
		items []models.Signal
		err   error
	)
	if raw := strings.TrimSpace(c.Query("status")); raw == "" {
		items, err = h.Service.RecentSignals(c.Request.Context(), limit, offset)
	} else {
		status, ok := models.ParseSignalStatus(raw)
		if !ok {
			Error(c, http.StatusBadRequest, "invalid status", nil)
			return
		}
		if status == models.SignalStatusOpen {
			items, err = h.Service.OpenSignals(c.Request.Context(), limit, offset)
		} else {
			items, err = h.Repo.ListSignals(c.Request.Context(), repository.ListSignalsParams{Limit: limit, Offset: offset, Status: &status})
		}
	}
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, len(items)))
}

// isFollowing checks ?wallet=, falling back to the caller.
func (h *HubHandler) isFollowing(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	wallet := strings.TrimSpace(c.Query("wallet"))
	if wallet == "" {
		if wallet, ok = h.requireOwner(c); !ok {
			return
		}
	}
	following, err := h.Service.IsFollowing(c.Request.Context(), wallet, id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, map[string]any{"strategy_id": id, "wallet": wallet, "following": following}, nil)
}

func (h *HubHandler) follow(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	wallet, ok := h.requireOwner(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req service.FollowInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid json body", nil)
			return
		}
	}
	item, err := h.Service.FollowStrategy(c.Request.Context(), wallet, id, req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, item)
}

func (h *HubHandler) unfollow(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	wallet, ok := h.requireOwner(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.Service.UnfollowStrategy(c.Request.Context(), wallet, id); err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, map[string]any{"strategy_id": id, "wallet": wallet}, nil)
}

func (h *HubHandler) publishSignal(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req service.SignalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid json body", nil)
		return
	}
	item, err := h.Service.PublishSignal(c.Request.Context(), owner, req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, item)
}

func (h *HubHandler) getSignal(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Service.GetSignal(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *HubHandler) cancelSignal(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Service.CancelSignal(c.Request.Context(), owner, id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, item, nil)
}

type resolveSignalRequest struct {
	ResolvedValue *int64 `json:"resolved_value"`
}

func (h *HubHandler) resolveSignal(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req resolveSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ResolvedValue == nil {
		Error(c, http.StatusBadRequest, "resolved_value required", nil)
		return
	}
	item, err := h.Service.ResolveSignal(c.Request.Context(), owner, id, *req.ResolvedValue)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *HubHandler) listActivities(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	params := repository.ListActivitiesParams{
		Limit:      intQuery(c, "limit", 100),
		Offset:     intQuery(c, "offset", 0),
		Kind:       strQueryPtr(c, "kind"),
		StrategyID: uint64QueryPtr(c, "strategy_id"),
		SignalID:   uint64QueryPtr(c, "signal_id"),
	}
	items, err := h.Repo.ListActivities(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	limit := repository.NormalizeLimit(params.Limit, 100)
	Ok(c, items, paginationMeta(limit, repository.NormalizeOffset(params.Offset), len(items)))
}
