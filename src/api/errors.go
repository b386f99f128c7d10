package api

import (
	"errors"
	"net/http"

	"github.com/warp-contracts/tempo-watchtower/src/model"

	"github.com/gin-gonic/gin"
)

// abortWithError maps a domain error to its HTTP status and writes the
// standard {"error": ...} body.
func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(httpStatusFor(err), gin.H{"error": err.Error()})
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrAmbiguous),
		errors.Is(err, model.ErrNotStale),
		errors.Is(err, model.ErrAlreadyTerminal),
		errors.Is(err, model.ErrGroupNonceKey),
		errors.Is(err, model.ErrGroupOrder),
		errors.Is(err, model.ErrMalformedTx),
		errors.Is(err, model.ErrBadSenderSig),
		errors.Is(err, model.ErrBadFeePayerSig),
		errors.Is(err, model.ErrUnsupportedChain),
		errors.Is(err, model.ErrExpired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
