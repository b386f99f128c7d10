package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// optionalChainID reads the chainId query parameter. ok is false when
// the value was present but malformed; a 400 has then been written.
func optionalChainID(c *gin.Context) (*uint64, bool) {
	v := c.Query("chainId")
	if v == "" {
		return nil, true
	}

	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chainId"})
		return nil, false
	}
	return &id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func boolQuery(c *gin.Context, name string) bool {
	return c.Query(name) == "true"
}
