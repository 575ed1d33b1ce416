package httpapi

import (
	"net/http"

	"campus-market/internal/domain"
	"campus-market/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	ProductID    string          `json:"productId" binding:"required"`
	BuyerName    string          `json:"buyerName"`
	SellerID     string          `json:"sellerId" binding:"required"`
	SellerName   string          `json:"sellerName"`
	ProductTitle string          `json:"productTitle"`
	ProductPrice decimal.Decimal `json:"productPrice"`
}

type transitionRequest struct {
	Status       domain.OrderStatus `json:"status" binding:"required"`
	CancelReason string             `json:"cancelReason"`
}

func (h *handler) createOrder(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.Orders.CreateOrder(ctx, domain.NewOrderInput{
		ProductID: req.ProductID,
		BuyerID:   userID,
		BuyerName: req.BuyerName,
		Seller: domain.SellerContext{
			SellerID:     req.SellerID,
			SellerName:   req.SellerName,
			ProductTitle: req.ProductTitle,
			ProductPrice: req.ProductPrice,
		},
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *handler) listMyOrders(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := h.Orders.ListMyOrders(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *handler) getOrder(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.Orders.GetOrder(ctx, c.Param("id"), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handler) transitionOrder(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	moved, err := h.Orders.Transition(ctx, c.Param("id"), req.Status, userID,
		service.TransitionExtra{CancelReason: req.CancelReason})
	if err != nil {
		h.fail(c, err)
		return
	}
	if !moved {
		c.JSON(http.StatusConflict, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handler) submitReview(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.OrderID = c.Param("id")
	req.FromUserID = userID

	ctx, cancel := requestContext(c)
	defer cancel()

	review, err := h.Orders.SubmitReview(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *handler) listReviews(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	reviews, err := h.Orders.GetOrderReviews(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}
