package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"artrise/models"
	"artrise/notify"
)

var errNotWinner = errors.New("user did not win this artwork")

type createShippingRequest struct {
	ArtworkID  uuid.UUID `json:"artworkId" binding:"required"`
	FullName   string    `json:"fullName" binding:"required,max=255"`
	Line1      string    `json:"line1" binding:"required,max=255"`
	Line2      string    `json:"line2" binding:"max=255"`
	City       string    `json:"city" binding:"required,max=128"`
	State      string    `json:"state" binding:"max=128"`
	PostalCode string    `json:"postalCode" binding:"required,max=32"`
	Country    string    `json:"country" binding:"required,max=64"`
	Phone      string    `json:"phone" binding:"max=32"`
}

type updateShippingStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"trackingNumber" binding:"max=128"`
}

// sale 是售出作品與其訂單
type sale struct {
	artwork models.Artwork
	order   models.Order
}

// findSale 載入售出的作品與得標訂單，作品未售出時返回 errNotWinner
func (s *Server) findSale(ctx context.Context, artworkID uuid.UUID) (sale, error) {
	const op = "findSale"
	db := s.db.WithContext(ctx)
	var result sale
	if err := db.Preload("Auction").Where("id = ?", artworkID).Take(&result.artwork).Error; err != nil {
		return result, err
	}
	if result.artwork.Status != models.ArtworkSold {
		return result, errNotWinner
	}
	err := db.Where("artwork_id = ?", artworkID).Take(&result.order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return result, errNotWinner
	}
	if err != nil {
		return result, fmt.Errorf("[%s] Fail to find order, err=%w", op, err)
	}
	return result, nil
}

// Check whether the current user won an artwork
// (GET /shipping/verify/:artworkId)
func (s *Server) verifyWinner(c *gin.Context) {
	const op = "verifyWinner"
	artworkID, ok := paramID(c, "artworkId")
	if !ok {
		return
	}
	found, err := s.findSale(c.Request.Context(), artworkID)
	if err == nil && found.order.BuyerID != currentUser(c).ID {
		err = errNotWinner
	}
	if errors.Is(err, errNotWinner) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success":  false,
			"isWinner": false,
			"error":    "You are not the winner of this artwork",
		})
		return
	}
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"isWinner": true,
		"amount":   found.order.Amount,
	})
}

// Submit the shipping address of a won artwork
// (POST /shipping)
func (s *Server) createShipping(c *gin.Context) {
	const op = "createShipping"
	var request createShippingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	user := currentUser(c)
	ctx := c.Request.Context()
	found, err := s.findSale(ctx, request.ArtworkID)
	if err == nil && found.order.BuyerID != user.ID {
		err = errNotWinner
	}
	if errors.Is(err, errNotWinner) {
		abortWithError(c, http.StatusForbidden, "Only the winner can submit a shipping address")
		return
	}
	if err != nil {
		s.respondError(c, op, err)
		return
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ShippingAddress{}).Where("artwork_id = ?", request.ArtworkID).Count(&count).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to check shipping address, err=%w", op, err))
		return
	}
	if count > 0 {
		abortWithError(c, http.StatusConflict, "Shipping address already submitted")
		return
	}

	address := models.ShippingAddress{
		ArtworkID:  request.ArtworkID,
		UserID:     user.ID,
		FullName:   strings.TrimSpace(request.FullName),
		Line1:      strings.TrimSpace(request.Line1),
		Line2:      strings.TrimSpace(request.Line2),
		City:       strings.TrimSpace(request.City),
		State:      strings.TrimSpace(request.State),
		PostalCode: strings.TrimSpace(request.PostalCode),
		Country:    strings.TrimSpace(request.Country),
		Phone:      strings.TrimSpace(request.Phone),
		Status:     models.ShippingPending,
	}
	if err := s.db.WithContext(ctx).Create(&address).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			abortWithError(c, http.StatusConflict, "Shipping address already submitted")
			return
		}
		s.respondError(c, op, fmt.Errorf("[%s] Fail to create shipping address, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "shipping": address})
}

// Get the shipping address of an artwork
// (GET /shipping/artwork/:artworkId)
func (s *Server) artworkShipping(c *gin.Context) {
	const op = "artworkShipping"
	artworkID, ok := paramID(c, "artworkId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var address models.ShippingAddress
	if err := s.db.WithContext(ctx).Where("artwork_id = ?", artworkID).Take(&address).Error; err != nil {
		s.respondError(c, op, err)
		return
	}
	user := currentUser(c)
	if user.ID != address.UserID {
		found, err := s.findSale(ctx, artworkID)
		if err != nil && !errors.Is(err, errNotWinner) {
			s.respondError(c, op, err)
			return
		}
		if found.artwork.Auction == nil || !canManage(user, found.artwork.Auction.ArtistID) {
			abortWithError(c, http.StatusForbidden, "You cannot view this shipping address")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "shipping": address})
}

// Update the shipping status
// (PATCH /shipping/:id/status)
func (s *Server) updateShippingStatus(c *gin.Context) {
	const op = "updateShippingStatus"
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var request updateShippingStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	status, valid := models.ParseShippingStatus(request.Status)
	if !valid {
		abortWithError(c, http.StatusBadRequest, "Invalid shipping status")
		return
	}
	trackingNumber := strings.TrimSpace(request.TrackingNumber)
	if status == models.ShippingShipped && trackingNumber == "" {
		abortWithError(c, http.StatusBadRequest, "trackingNumber is required when status is shipped")
		return
	}

	ctx := c.Request.Context()
	db := s.db.WithContext(ctx)
	var address models.ShippingAddress
	if err := db.Where("id = ?", id).Take(&address).Error; err != nil {
		s.respondError(c, op, err)
		return
	}
	found, err := s.findSale(ctx, address.ArtworkID)
	if err != nil && !errors.Is(err, errNotWinner) {
		s.respondError(c, op, err)
		return
	}
	if found.artwork.Auction == nil || !canManage(currentUser(c), found.artwork.Auction.ArtistID) {
		abortWithError(c, http.StatusForbidden, "Only the seller or an admin can update the shipping status")
		return
	}

	now := s.now()
	updates := map[string]any{"status": status}
	if trackingNumber != "" {
		updates["tracking_number"] = trackingNumber
	}
	switch status {
	case models.ShippingShipped:
		updates["shipped_at"] = now
	case models.ShippingDelivered:
		updates["delivered_at"] = now
	}
	if err := db.Model(&address).Updates(updates).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to update shipping status, err=%w", op, err))
		return
	}

	if status == models.ShippingShipped {
		s.dispatcher.Dispatch(notify.Notification{
			Kind:           notify.KindShipmentSent,
			UserID:         address.UserID,
			ArtworkID:      address.ArtworkID,
			ArtworkTitle:   found.artwork.Title,
			OrderID:        found.order.ID,
			TrackingNumber: trackingNumber,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "shipping": address})
}
