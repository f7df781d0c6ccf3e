package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crossmarket/admincore/internal/money"
	"github.com/crossmarket/admincore/internal/order"
)

// putOrderHandler handles PUT /v1/orders/:id — the marketplace pushes
// order snapshots here so disputes can be settled against them. The
// admin core never invents or edits order amounts itself.
func (s *Server) putOrderHandler(c *gin.Context) {
	var req struct {
		ListingTitle string `json:"listingTitle"`
		Amount       string `json:"amount" binding:"required"`
		Currency     string `json:"currency"`
		BuyerID      string `json:"buyerId" binding:"required"`
		SellerID     string `json:"sellerId" binding:"required"`
		EscrowID     string `json:"escrowId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: amount, buyerId, and sellerId are required",
		})
		return
	}

	amount, err := money.Canonical(req.Amount)
	if err != nil || !money.IsPositive(amount) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation_error",
			"message": "amount must be a positive decimal with at most 2 fraction digits",
		})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	o := &order.Order{
		ID:           c.Param("id"),
		ListingTitle: req.ListingTitle,
		Amount:       amount,
		Currency:     req.Currency,
		BuyerID:      req.BuyerID,
		SellerID:     req.SellerID,
		EscrowID:     req.EscrowID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.orders.Put(c.Request.Context(), o); err != nil {
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// getOrderHandler handles GET /v1/orders/:id
func (s *Server) getOrderHandler(c *gin.Context) {
	o, err := s.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Order not found",
			})
			return
		}
		writeDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
