package api

import (
	"net/http"

	"github.com/warp-contracts/tempo-watchtower/src/model"
	"github.com/warp-contracts/tempo-watchtower/src/store"

	"github.com/gin-gonic/gin"
)

// SubmitRequest is the batch submission body.
type SubmitRequest struct {
	ChainID      uint64   `json:"chainId" binding:"required"`
	Transactions []string `json:"transactions" binding:"required"`
}

func (self *Server) onSubmitTransactions(c *gin.Context) {
	var in SubmitRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	results := make([]SubmitResultJSON, 0, len(in.Transactions))
	for _, rawHex := range in.Transactions {
		raw, err := parseHex(rawHex)
		if err != nil {
			msg := "invalid transaction hex: " + err.Error()
			results = append(results, SubmitResultJSON{Ok: false, Error: &msg})
			continue
		}

		record, alreadyKnown, err := self.ingest.SubmitRaw(c.Request.Context(), &in.ChainID, raw)
		if err != nil {
			msg := err.Error()
			results = append(results, SubmitResultJSON{Ok: false, Error: &msg})
			continue
		}
		results = append(results, toSubmitResult(record, alreadyKnown))
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (self *Server) onGetTransaction(c *gin.Context) {
	txHash, err := parseFixedHex(c.Param("txHash"), 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction hash"})
		return
	}

	chainID, ok := optionalChainID(c)
	if !ok {
		return
	}

	record, err := self.ingest.GetTx(c.Request.Context(), txHash, chainID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTxInfo(record))
}

func (self *Server) onMarkStale(c *gin.Context) {
	txHash, err := parseFixedHex(c.Param("txHash"), 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction hash"})
		return
	}

	chainID, ok := optionalChainID(c)
	if !ok {
		return
	}

	record, err := self.ingest.MarkStale(c.Request.Context(), txHash, chainID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTxInfo(record))
}

func (self *Server) onListTransactions(c *gin.Context) {
	var filters store.Filters

	chainID, ok := optionalChainID(c)
	if !ok {
		return
	}
	filters.ChainID = chainID

	if v := c.Query("sender"); v != "" {
		sender, err := parseFixedHex(v, 20)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sender"})
			return
		}
		filters.Sender = sender
	}

	if v := c.Query("groupId"); v != "" {
		groupID, err := parseFixedHex(v, 16)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid groupId"})
			return
		}
		filters.GroupID = groupID
	}

	if v := c.Query("ungrouped"); v == "true" {
		if filters.GroupID != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "groupId and ungrouped are mutually exclusive"})
			return
		}
		filters.Ungrouped = true
	}

	for _, v := range c.QueryArray("status") {
		status, ok := model.ParseStatus(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + v})
			return
		}
		filters.Statuses = append(filters.Statuses, status)
	}

	filters.Limit = intQuery(c, "limit", 100)

	records, err := self.store.List(c.Request.Context(), filters)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out := make([]TxInfo, 0, len(records))
	for i := range records {
		out = append(out, toTxInfo(&records[i]))
	}
	c.JSON(http.StatusOK, out)
}
