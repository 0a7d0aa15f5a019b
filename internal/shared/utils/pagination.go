package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/soundmesh/internal/shared/constants"
)

// ParseLimit reads the "limit" query parameter. Missing or invalid values
// fall back to DefaultPageSize; larger values are capped at MaxPageSize.
func ParseLimit(c *gin.Context) int {
	return ValidateLimit(parseQueryInt(c, "limit", constants.DefaultPageSize))
}

// ValidateLimit normalizes a list limit.
func ValidateLimit(limit int) int {
	if limit < 1 {
		return constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		return constants.MaxPageSize
	}
	return limit
}

// parseQueryInt parses an integer query parameter with a default value.
func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 1 {
			return n
		}
	}
	return defaultVal
}
