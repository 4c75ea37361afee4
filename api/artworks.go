package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"artrise/models"
)

type createArtworkRequest struct {
	Title       string           `json:"title" binding:"required,max=255"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency" binding:"omitempty,len=3,alpha"`
	Images      []string         `json:"images" binding:"max=20,dive,max=2048"`
	StartPrice  decimal.Decimal  `json:"startPrice"`
	Status      string           `json:"status" binding:"omitempty,oneof=draft live"`
	EndTime     *time.Time       `json:"endTime"`
}

type updateArtworkRequest struct {
	Title       *string          `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Currency    *string          `json:"currency" binding:"omitempty,len=3,alpha"`
	Images      []string         `json:"images" binding:"omitempty,max=20,dive,max=2048"`
	StartPrice  *decimal.Decimal `json:"startPrice"`
	Status      *string          `json:"status" binding:"omitempty,oneof=draft live"`
}

// Add an artwork to an auction
// (POST /auctions/:id/artworks)
func (s *Server) createArtwork(c *gin.Context) {
	const op = "createArtwork"
	auction, ok := s.loadManagedAuction(c, op)
	if !ok {
		return
	}
	var request createArtworkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !request.StartPrice.IsPositive() {
		abortWithError(c, http.StatusBadRequest, "startPrice must be greater than zero")
		return
	}
	price := decimal.Zero
	if request.Price != nil {
		if request.Price.IsNegative() {
			abortWithError(c, http.StatusBadRequest, "price cannot be negative")
			return
		}
		price = request.Price.Round(2)
	}
	endTime := auction.EndTime
	if request.EndTime != nil {
		endTime = *request.EndTime
	}
	if !endTime.After(s.now()) {
		abortWithError(c, http.StatusBadRequest, "endTime must be in the future")
		return
	}

	artwork := models.Artwork{
		AuctionID:   auction.ID,
		Title:       strings.TrimSpace(request.Title),
		Description: s.htmlChecker.Sanitize(request.Description),
		Price:       price,
		Currency:    currencyOrDefault(request.Currency),
		Images:      request.Images,
		StartPrice:  request.StartPrice.Round(2),
		Status:      models.ArtworkLive,
		EndTime:     endTime,
	}
	if request.Status != "" {
		artwork.Status = models.ArtworkStatus(request.Status)
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&artwork).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to create artwork, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"artwork": artwork})
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "USD"
	}
	return strings.ToUpper(currency)
}

// List artworks, filtered by ?status= and ?auctionId=
// (GET /artworks)
func (s *Server) listArtworks(c *gin.Context) {
	const op = "listArtworks"
	p := readPage(c)
	query := s.db.WithContext(c.Request.Context()).Model(&models.Artwork{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if auctionID := c.Query("auctionId"); auctionID != "" {
		query = query.Where("auction_id = ?", auctionID)
	}
	if err := query.Count(&p.Total).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to count artworks, err=%w", op, err))
		return
	}

	var artworks []models.Artwork
	if err := query.Scopes(p.scope).Order("end_time ASC").Find(&artworks).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to list artworks, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"artworks": artworks, "pagination": p})
}

// Get an artwork with its current bid statistics
// (GET /artworks/:id)
func (s *Server) getArtwork(c *gin.Context) {
	const op = "getArtwork"
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var artwork models.Artwork
	err := s.db.WithContext(ctx).
		Preload("Auction").
		Preload("Auction.Artist", selectArtist).
		Where("id = ?", id).
		Take(&artwork).Error
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	stats, err := s.engine.Quote(ctx, id)
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artwork": artwork, "stats": stats})
}

// loadManagedArtwork 載入作品並確認目前使用者是拍賣的藝術家或管理員
func (s *Server) loadManagedArtwork(c *gin.Context, op string) (models.Artwork, bool) {
	var artwork models.Artwork
	id, ok := paramID(c, "id")
	if !ok {
		return artwork, false
	}
	if err := s.db.WithContext(c.Request.Context()).Preload("Auction").Where("id = ?", id).Take(&artwork).Error; err != nil {
		s.respondError(c, op, err)
		return artwork, false
	}
	if artwork.Auction == nil || !canManage(currentUser(c), artwork.Auction.ArtistID) {
		abortWithError(c, http.StatusForbidden, "Only the artist or an admin can manage this artwork")
		return artwork, false
	}
	return artwork, true
}

// Update an artwork that is still a draft or live
// (PATCH /artworks/:id)
func (s *Server) updateArtwork(c *gin.Context) {
	const op = "updateArtwork"
	artwork, ok := s.loadManagedArtwork(c, op)
	if !ok {
		return
	}
	var request updateArtworkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if artwork.Status != models.ArtworkLive && artwork.Status != models.ArtworkDraft {
		abortWithError(c, http.StatusConflict, "Cannot modify an artwork after its auction has been settled")
		return
	}

	updates := map[string]any{}
	if request.Title != nil {
		updates["title"] = strings.TrimSpace(*request.Title)
	}
	if request.Description != nil {
		updates["description"] = s.htmlChecker.Sanitize(*request.Description)
	}
	if request.Price != nil {
		if request.Price.IsNegative() {
			abortWithError(c, http.StatusBadRequest, "price cannot be negative")
			return
		}
		updates["price"] = request.Price.Round(2)
	}
	if request.Currency != nil {
		updates["currency"] = currencyOrDefault(*request.Currency)
	}
	if request.Images != nil {
		// map 更新不經過 serializer，需自行編碼
		encoded, err := json.Marshal(request.Images)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid images")
			return
		}
		updates["images"] = string(encoded)
	}
	if request.StartPrice != nil {
		if !request.StartPrice.IsPositive() {
			abortWithError(c, http.StatusBadRequest, "startPrice must be greater than zero")
			return
		}
		updates["start_price"] = request.StartPrice.Round(2)
	}
	if request.Status != nil {
		updates["status"] = models.ArtworkStatus(*request.Status)
	}

	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		// 已有出價時不能改起標價，也不能撤回成草稿
		_, changesStart := updates["start_price"]
		if changesStart || updates["status"] == models.ArtworkDraft {
			var bids int64
			if err := tx.Model(&models.Offer{}).Where("artwork_id = ?", artwork.ID).Count(&bids).Error; err != nil {
				return fmt.Errorf("[%s] Fail to count offers, err=%w", op, err)
			}
			if bids > 0 {
				return errHasBids
			}
		}
		if len(updates) == 0 {
			return nil
		}
		result := tx.Model(&models.Artwork{}).
			Where("id = ? AND status IN ?", artwork.ID, []models.ArtworkStatus{models.ArtworkLive, models.ArtworkDraft}).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to update artwork, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			return errSettled
		}
		return tx.Where("id = ?", artwork.ID).Take(&artwork).Error
	})
	switch {
	case errors.Is(err, errHasBids):
		abortWithError(c, http.StatusConflict, "Cannot change the start price or withdraw an artwork that has bids")
		return
	case errors.Is(err, errSettled):
		abortWithError(c, http.StatusConflict, "Cannot modify an artwork after its auction has been settled")
		return
	case err != nil:
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artwork": artwork})
}

// Delete an artwork that has not received any bid
// (DELETE /artworks/:id)
func (s *Server) deleteArtwork(c *gin.Context) {
	const op = "deleteArtwork"
	artwork, ok := s.loadManagedArtwork(c, op)
	if !ok {
		return
	}
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var bids int64
		if err := tx.Model(&models.Offer{}).Where("artwork_id = ?", artwork.ID).Count(&bids).Error; err != nil {
			return fmt.Errorf("[%s] Fail to count offers, err=%w", op, err)
		}
		if bids > 0 {
			return errHasBids
		}
		return tx.Delete(&models.Artwork{}, "id = ?", artwork.ID).Error
	})
	if errors.Is(err, errHasBids) {
		abortWithError(c, http.StatusConflict, "Cannot delete an artwork that has bids")
		return
	}
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}
