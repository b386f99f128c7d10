package api

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

func (self *Server) onListGroups(c *gin.Context) {
	sender, err := parseFixedHex(c.Query("sender"), 20)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sender"})
		return
	}

	chainID, ok := optionalChainID(c)
	if !ok {
		return
	}

	limit := intQuery(c, "limit", 100)
	activeOnly := boolQuery(c, "active")

	groups, err := self.store.ListSenderGroups(c.Request.Context(), sender, chainID, limit, activeOnly)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out := make([]GroupSummaryJSON, 0, len(groups))
	for i := range groups {
		out = append(out, GroupSummaryJSON{
			ChainID: groups[i].ChainID,
			GroupID: hexutil.Encode(groups[i].GroupID),
			StartAt: groups[i].StartAt.Unix(),
			EndAt:   groups[i].EndAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (self *Server) onGetGroup(c *gin.Context) {
	sender, err := parseFixedHex(c.Param("sender"), 20)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sender"})
		return
	}
	groupID, err := parseFixedHex(c.Param("groupId"), 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid groupId"})
		return
	}

	chainID, ok := optionalChainID(c)
	if !ok {
		return
	}

	members, err := self.store.GroupTxs(c.Request.Context(), sender, groupID, chainID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	resolvedChain := members[0].ChainID
	if chainID == nil {
		for i := range members {
			if members[i].ChainID != resolvedChain {
				c.JSON(http.StatusBadRequest, gin.H{"error": "multiple chainIds found; specify chainId"})
				return
			}
		}
	}

	memberViews := make([]GroupMemberJSON, 0, len(members))
	for i := range members {
		memberViews = append(memberViews, GroupMemberJSON{
			TxHash:   hexutil.Encode(members[i].TxHash),
			NonceKey: nonceKeyHex(members[i].NonceKey),
			Nonce:    members[i].Nonce,
			Status:   members[i].Status.String(),
		})
	}

	plan, err := self.ingest.CancelPlan(resolvedChain, sender, members)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, GroupResponse{
		Sender:  hexutil.Encode(sender),
		GroupID: hexutil.Encode(groupID),
		Members: memberViews,
		CancelPlan: CancelPlanJSON{
			NonceKey:           nonceKeyHex(plan.NonceKey),
			Nonces:             plan.Nonces,
			AlreadyInvalidated: plan.AlreadyInvalidated,
		},
	})
}

func (self *Server) onCancelGroup(c *gin.Context) {
	sender, err := parseFixedHex(c.Param("sender"), 20)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sender"})
		return
	}
	groupID, err := parseFixedHex(c.Param("groupId"), 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid groupId"})
		return
	}

	chainID, ok := optionalChainID(c)
	if !ok {
		return
	}

	signature, err := signatureFromHeader(c.GetHeader("Authorization"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	canceled, err := self.ingest.CancelGroup(c.Request.Context(), sender, groupID, chainID, signature)
	if err != nil {
		abortWithError(c, err)
		return
	}

	txHashes := make([]string, 0, len(canceled))
	for i := range canceled {
		txHashes = append(txHashes, hexutil.Encode(canceled[i].TxHash))
	}

	c.JSON(http.StatusOK, CancelResponse{Canceled: len(canceled), TxHashes: txHashes})
}

// signatureFromHeader parses "Authorization: Signature <hex>".
func signatureFromHeader(header string) ([]byte, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Signature" {
		return nil, errInvalidAuthorization
	}
	signature, err := parseHex(parts[1])
	if err != nil || len(signature) == 0 {
		return nil, errInvalidAuthorization
	}
	return signature, nil
}
