package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const ownerHeader = "X-Owner"

func ownerFrom(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(ownerHeader))
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func boolQueryDefault(c *gin.Context, key string, def bool) bool {
	if val := c.Query(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

func strQueryPtr(c *gin.Context, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

func uint64QueryPtr(c *gin.Context, key string) *uint64 {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		if v, err := strconv.ParseUint(val, 10, 64); err == nil {
			return &v
		}
	}
	return nil
}

func idParam(c *gin.Context, key string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(c.Param(key)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

func paginationMeta(limit, offset, returned int) map[string]any {
	if limit <= 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return map[string]any{
		"limit":    limit,
		"offset":   offset,
		"returned": returned,
		"has_next": limit > 0 && returned >= limit,
	}
}
