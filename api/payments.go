package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"artrise/models"
	"artrise/notify"
)

var errOrderClosed = errors.New("order is not awaiting payment")

type createPaymentRequest struct {
	OrderID   uuid.UUID       `json:"orderId" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" binding:"omitempty,len=3,alpha"`
	Method    string          `json:"method" binding:"required,max=32"`
	Status    string          `json:"status" binding:"omitempty,oneof=pending succeeded failed"`
	Reference string          `json:"reference" binding:"max=255"`
}

// Record a payment for an order, no charge is made
// (POST /payments)
func (s *Server) createPayment(c *gin.Context) {
	const op = "createPayment"
	var request createPaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	status := models.PaymentSucceeded
	if request.Status != "" {
		status = models.PaymentStatus(request.Status)
	}

	user := currentUser(c)
	ctx := c.Request.Context()
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Artwork").Where("id = ?", request.OrderID).Take(&order).Error; err != nil {
		s.respondError(c, op, err)
		return
	}
	if order.BuyerID != user.ID {
		abortWithError(c, http.StatusForbidden, "Only the buyer can pay for this order")
		return
	}
	if !request.Amount.Equal(order.Amount) {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Payment amount must be %s", order.Amount.StringFixed(2)))
		return
	}
	if request.Currency != "" && !strings.EqualFold(request.Currency, order.Currency) {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Payment currency must be %s", order.Currency))
		return
	}

	payment := models.Payment{
		OrderID:   order.ID,
		PayerID:   user.ID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Method:    request.Method,
		Status:    status,
		Reference: request.Reference,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 只有待付款或付款失敗的訂單可以再付款
		result := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", order.ID, []models.OrderStatus{models.OrderPending, models.OrderFailed}).
			Updates(map[string]any{"status": status.OrderStatus(), "payment_reference": request.Reference})
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to update order, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			return errOrderClosed
		}
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("[%s] Fail to create payment, err=%w", op, err)
		}
		return nil
	})
	if errors.Is(err, errOrderClosed) {
		abortWithError(c, http.StatusConflict, "Order is not awaiting payment")
		return
	}
	if err != nil {
		s.respondError(c, op, err)
		return
	}

	if status == models.PaymentSucceeded {
		n := notify.Notification{
			Kind:      notify.KindOrderPaid,
			UserID:    order.SellerID,
			ArtworkID: order.ArtworkID,
			OrderID:   order.ID,
			Amount:    order.Amount.StringFixed(2),
			Currency:  order.Currency,
		}
		if order.Artwork != nil {
			n.ArtworkTitle = order.Artwork.Title
		}
		s.dispatcher.Dispatch(n)
	}
	c.JSON(http.StatusCreated, gin.H{"payment": payment})
}

// List the payments of an order
// (GET /payments/order/:orderId)
func (s *Server) orderPayments(c *gin.Context) {
	const op = "orderPayments"
	order, ok := s.loadOrder(c, op, "orderId")
	if !ok {
		return
	}
	var payments []models.Payment
	if err := s.db.WithContext(c.Request.Context()).Where("order_id = ?", order.ID).Order("created_at ASC").Find(&payments).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to list payments, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
