package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/marketplace-settlement/internal/assign"
	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/fulfillment"
	"github.com/safar/marketplace-settlement/internal/payout"
	"github.com/safar/marketplace-settlement/internal/store"
)

func respondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondErr maps domain errors onto HTTP statuses. Anything unknown is a 500
// and its detail stays in the log.
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrSellerNotFound),
		errors.Is(err, database.ErrWalletNotFound),
		errors.Is(err, database.ErrCourierNotFound),
		errors.Is(err, database.ErrSettlementNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, fulfillment.ErrNotAssigned):
		respondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, payout.ErrOrderNotDelivered),
		errors.Is(err, fulfillment.ErrInvalidTransition):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, payout.ErrNoSellers),
		errors.Is(err, assign.ErrNoCourier),
		errors.Is(err, fulfillment.ErrNothingReturned):
		respondError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, fulfillment.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidCursor):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		rid, _ := c.Get(ctxRequestID)
		log.Printf("[http] rid=%v %s %s error: %v", rid, c.Request.Method, c.Request.URL.Path, err)
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return limit
}
