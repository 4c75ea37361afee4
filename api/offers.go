package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"artrise/bidding"
)

type placeOfferRequest struct {
	ArtworkID uuid.UUID `json:"artworkId" binding:"required"`
	// UserID 可省略，提供時必須是目前登入的使用者
	UserID *uuid.UUID      `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

type rejectedOfferResponse struct {
	Success           bool             `json:"success"`
	Error             string           `json:"error"`
	MinBidAmount      *decimal.Decimal `json:"minBidAmount,omitempty"`
	CurrentHighestBid *decimal.Decimal `json:"currentHighestBid,omitempty"`
	MinIncrement      *decimal.Decimal `json:"minIncrement,omitempty"`
}

// Place a bid on an artwork
// (POST /offers)
func (s *Server) placeOffer(c *gin.Context) {
	const op = "placeOffer"
	var request placeOfferRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	user := currentUser(c)
	if request.UserID != nil && *request.UserID != user.ID {
		abortWithError(c, http.StatusForbidden, "Cannot place a bid on behalf of another user")
		return
	}

	result, err := s.engine.PlaceBid(c.Request.Context(), request.ArtworkID, user.ID, request.Amount)
	if err != nil {
		var rejection *bidding.RejectionError
		switch {
		case errors.As(err, &rejection):
			c.AbortWithStatusJSON(http.StatusBadRequest, rejectedOfferResponse{
				Error:             rejection.Error(),
				MinBidAmount:      &rejection.MinBid,
				CurrentHighestBid: &rejection.CurrentHighest,
				MinIncrement:      &rejection.Increment,
			})
		case errors.Is(err, bidding.ErrAuctionEnded), errors.Is(err, bidding.ErrInvalidAmount):
			c.AbortWithStatusJSON(http.StatusBadRequest, rejectedOfferResponse{Error: err.Error()})
		case errors.Is(err, bidding.ErrOwnArtwork):
			c.AbortWithStatusJSON(http.StatusForbidden, rejectedOfferResponse{Error: err.Error()})
		default:
			s.respondError(c, op, err)
		}
		return
	}

	message := "Bid updated successfully"
	if result.IsNewBid {
		message = "Bid placed successfully"
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"offer":    result.Offer,
		"message":  message,
		"isNewBid": result.IsNewBid,
		"stats":    result.Stats,
	})
}

// List the bids of an artwork, highest first
// (GET /offers/artwork/:artworkId)
func (s *Server) artworkOffers(c *gin.Context) {
	const op = "artworkOffers"
	artworkID, ok := paramID(c, "artworkId")
	if !ok {
		return
	}
	offers, stats, err := s.engine.ListOffers(c.Request.Context(), artworkID)
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "offers": offers, "stats": stats})
}

// List the current user's bids
// (GET /offers/me)
func (s *Server) myOffers(c *gin.Context) {
	const op = "myOffers"
	offers, err := s.engine.UserOffers(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "offers": offers})
}
