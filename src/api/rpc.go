package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp-contracts/tempo-watchtower/src/model"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

var errInvalidAuthorization = errors.New("invalid authorization header")

const (
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInvalidParams  = -32602
	rpcCodeInternal       = -32603
)

type rpcRequest struct {
	JsonRpc string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// onRpc handles the JSON-RPC 2.0 surface; only eth_sendRawTransaction
// is served, everything else gets a method-not-found.
func (self *Server) onRpc(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		self.rpcError(c, nil, rpcCodeInvalidRequest, "expected JSON-RPC request object")
		return
	}
	if req.JsonRpc != "" && req.JsonRpc != "2.0" {
		self.rpcError(c, req.ID, rpcCodeInvalidRequest, "unsupported jsonrpc version")
		return
	}
	if req.Method == "" {
		self.rpcError(c, req.ID, rpcCodeInvalidRequest, "missing method")
		return
	}
	if req.Method != "eth_sendRawTransaction" {
		self.rpcError(c, req.ID, rpcCodeMethodNotFound, "method not found: "+req.Method)
		return
	}

	var rawHex string
	if len(req.Params) < 1 || json.Unmarshal(req.Params[0], &rawHex) != nil {
		self.rpcError(c, req.ID, rpcCodeInvalidParams, "expected raw transaction hex string")
		return
	}

	raw, err := parseHex(rawHex)
	if err != nil {
		self.rpcError(c, req.ID, rpcCodeInvalidParams, "invalid transaction hex: "+err.Error())
		return
	}

	record, _, err := self.ingest.SubmitRaw(c.Request.Context(), nil, raw)
	if err != nil {
		self.rpcError(c, req.ID, rpcCodeFor(err), err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jsonrpc": "2.0",
		"id":      rpcID(req.ID),
		"result":  hexutil.Encode(record.TxHash),
	})
}

func rpcCodeFor(err error) int {
	switch {
	case errors.Is(err, model.ErrMalformedTx),
		errors.Is(err, model.ErrBadSenderSig),
		errors.Is(err, model.ErrBadFeePayerSig),
		errors.Is(err, model.ErrUnsupportedChain),
		errors.Is(err, model.ErrExpired),
		errors.Is(err, model.ErrGroupNonceKey),
		errors.Is(err, model.ErrGroupOrder):
		return rpcCodeInvalidParams
	default:
		return rpcCodeInternal
	}
}

func (self *Server) rpcError(c *gin.Context, id json.RawMessage, code int, message string) {
	c.JSON(http.StatusOK, gin.H{
		"jsonrpc": "2.0",
		"id":      rpcID(id),
		"error":   gin.H{"code": code, "message": message},
	})
}

func rpcID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
