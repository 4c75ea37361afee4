package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"artrise/models"
)

type updateOrderStatusRequest struct {
	Status           string  `json:"status" binding:"required"`
	PaymentReference *string `json:"paymentReference" binding:"omitempty,max=255"`
}

func (s *Server) listOrders(c *gin.Context, op, column string) {
	var orders []models.Order
	err := s.db.WithContext(c.Request.Context()).
		Preload("Artwork").
		Where(column+" = ?", currentUser(c).ID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to list orders, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// List orders the current user bought
// (GET /orders/me)
func (s *Server) myOrders(c *gin.Context) {
	s.listOrders(c, "myOrders", "buyer_id")
}

// List orders of artworks the current user sold
// (GET /orders/selling)
func (s *Server) sellingOrders(c *gin.Context) {
	s.listOrders(c, "sellingOrders", "seller_id")
}

// loadOrder 載入訂單，只有買家、賣家與管理員可以看到
func (s *Server) loadOrder(c *gin.Context, op, param string) (models.Order, bool) {
	var order models.Order
	id, ok := paramID(c, param)
	if !ok {
		return order, false
	}
	if err := s.db.WithContext(c.Request.Context()).Preload("Artwork").Where("id = ?", id).Take(&order).Error; err != nil {
		s.respondError(c, op, err)
		return order, false
	}
	user := currentUser(c)
	if user.ID != order.BuyerID && !canManage(user, order.SellerID) {
		abortWithError(c, http.StatusForbidden, "You are not a party of this order")
		return order, false
	}
	return order, true
}

// Get an order
// (GET /orders/:id)
func (s *Server) getOrder(c *gin.Context) {
	order, ok := s.loadOrder(c, "getOrder", "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// Update an order's status
// (PATCH /orders/:id/status)
func (s *Server) updateOrderStatus(c *gin.Context) {
	const op = "updateOrderStatus"
	order, ok := s.loadOrder(c, op, "id")
	if !ok {
		return
	}
	if !canManage(currentUser(c), order.SellerID) {
		abortWithError(c, http.StatusForbidden, "Only the seller or an admin can update this order")
		return
	}
	var request updateOrderStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	status, valid := models.ParseOrderStatus(request.Status)
	if !valid {
		abortWithError(c, http.StatusBadRequest, "Invalid order status")
		return
	}

	updates := map[string]any{"status": status}
	if request.PaymentReference != nil {
		updates["payment_reference"] = *request.PaymentReference
	}
	if err := s.db.WithContext(c.Request.Context()).Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to update order, err=%w", op, err))
		return
	}
	order.Status = status
	if request.PaymentReference != nil {
		order.PaymentReference = *request.PaymentReference
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
