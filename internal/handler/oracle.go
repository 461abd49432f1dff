package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"agenthub/internal/oracle"
)

// priceView adds the 2-decimal rendering of the fixed-point price.
type priceView struct {
	oracle.Price
	Display string `json:"display"`
}

func newPriceView(p oracle.Price) priceView {
	return priceView{Price: p, Display: decimal.New(p.Price, -2).StringFixed(2)}
}

type OracleHandler struct {
	Oracle *oracle.Oracle
}

func (h *OracleHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/oracle")
	group.GET("/prices", h.listPrices)
	group.GET("/prices/:symbol", h.getPrice)
	group.GET("/health", h.health)
}

func (h *OracleHandler) listPrices(c *gin.Context) {
	if h.Oracle == nil {
		Error(c, http.StatusInternalServerError, "oracle unavailable", nil)
		return
	}
	symbols := h.Oracle.Symbols()
	items := make([]priceView, 0, len(symbols))
	for _, sym := range symbols {
		p, err := h.Oracle.GetPrice(c.Request.Context(), sym)
		if err != nil {
			continue
		}
		items = append(items, newPriceView(p))
	}
	Ok(c, items, nil)
}

func (h *OracleHandler) getPrice(c *gin.Context) {
	if h.Oracle == nil {
		Error(c, http.StatusInternalServerError, "oracle unavailable", nil)
		return
	}
	sym := oracle.ResolveSymbol(c.Param("symbol"))
	if sym == "" {
		Error(c, http.StatusBadRequest, "symbol required", nil)
		return
	}
	p, err := h.Oracle.GetPrice(c.Request.Context(), sym)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, newPriceView(p), nil)
}

func (h *OracleHandler) health(c *gin.Context) {
	if h.Oracle == nil {
		Error(c, http.StatusInternalServerError, "oracle unavailable", nil)
		return
	}
	Ok(c, h.Oracle.Health(), map[string]any{"symbols": h.Oracle.Symbols()})
}
