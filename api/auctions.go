package api

import (
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

type createAuctionRequest struct {
	Title        string           `json:"title" binding:"required,max=255"`
	Description  string           `json:"description"`
	BannerURL    string           `json:"bannerUrl" binding:"omitempty,max=2048"`
	MinIncrement *decimal.Decimal `json:"minIncrement"`
	EndTime      time.Time        `json:"endTime" binding:"required"`
}

type updateAuctionRequest struct {
	Title        *string          `json:"title" binding:"omitempty,min=1,max=255"`
	Description  *string          `json:"description"`
	BannerURL    *string          `json:"bannerUrl" binding:"omitempty,max=2048"`
	MinIncrement *decimal.Decimal `json:"minIncrement"`
}

// normalizeIncrement 套用預設值與下限
func normalizeIncrement(increment *decimal.Decimal) decimal.Decimal {
	if increment == nil || increment.IsZero() {
		return models.DefaultMinIncrement
	}
	if increment.LessThan(models.FloorMinIncrement) {
		return models.FloorMinIncrement
	}
	return increment.Round(2)
}

func selectArtist(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "avatar_url")
}

// Create an auction
// (POST /auctions)
func (s *Server) createAuction(c *gin.Context) {
	const op = "createAuction"
	var request createAuctionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !request.EndTime.After(s.now()) {
		abortWithError(c, http.StatusBadRequest, "endTime must be in the future")
		return
	}

	auction := models.Auction{
		ArtistID:     currentUser(c).ID,
		Title:        strings.TrimSpace(request.Title),
		Description:  s.htmlChecker.Sanitize(request.Description),
		BannerURL:    request.BannerURL,
		MinIncrement: normalizeIncrement(request.MinIncrement),
		EndTime:      request.EndTime,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&auction).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to create auction, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"auction": auction})
}

// List auctions, ?active=true returns only auctions that have not ended
// (GET /auctions)
func (s *Server) listAuctions(c *gin.Context) {
	const op = "listAuctions"
	p := readPage(c)
	query := s.db.WithContext(c.Request.Context()).Model(&models.Auction{})
	if c.Query("active") == "true" {
		query = query.Where("end_time > ?", s.now())
	}
	if artistID := c.Query("artistId"); artistID != "" {
		query = query.Where("artist_id = ?", artistID)
	}
	if err := query.Count(&p.Total).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to count auctions, err=%w", op, err))
		return
	}

	var auctions []models.Auction
	err := query.Scopes(p.scope).
		Preload("Artist", selectArtist).
		Order("end_time ASC").
		Find(&auctions).Error
	if err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to list auctions, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"auctions": auctions, "pagination": p})
}

// Get an auction with its artworks
// (GET /auctions/:id)
func (s *Server) getAuction(c *gin.Context) {
	const op = "getAuction"
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var auction models.Auction
	err := s.db.WithContext(c.Request.Context()).
		Preload("Artist", selectArtist).
		Preload("Artworks", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		Take(&auction).Error
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auction": auction})
}

// loadManagedAuction 載入拍賣並確認目前使用者可以管理它
func (s *Server) loadManagedAuction(c *gin.Context, op string) (models.Auction, bool) {
	var auction models.Auction
	id, ok := paramID(c, "id")
	if !ok {
		return auction, false
	}
	if err := s.db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&auction).Error; err != nil {
		s.respondError(c, op, err)
		return auction, false
	}
	if !canManage(currentUser(c), auction.ArtistID) {
		abortWithError(c, http.StatusForbidden, "Only the artist or an admin can manage this auction")
		return auction, false
	}
	return auction, true
}

// Update an auction, the end time is fixed at creation
// (PATCH /auctions/:id)
func (s *Server) updateAuction(c *gin.Context) {
	const op = "updateAuction"
	auction, ok := s.loadManagedAuction(c, op)
	if !ok {
		return
	}
	var request updateAuctionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	updates := map[string]any{}
	if request.Title != nil {
		updates["title"] = strings.TrimSpace(*request.Title)
	}
	if request.Description != nil {
		updates["description"] = s.htmlChecker.Sanitize(*request.Description)
	}
	if request.BannerURL != nil {
		updates["banner_url"] = *request.BannerURL
	}
	if request.MinIncrement != nil {
		updates["min_increment"] = normalizeIncrement(request.MinIncrement)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(c.Request.Context()).Model(&auction).Updates(updates).Error; err != nil {
			s.respondError(c, op, fmt.Errorf("[%s] Fail to update auction, err=%w", op, err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"auction": auction})
}

// Delete an auction that has not received any bid
// (DELETE /auctions/:id)
func (s *Server) deleteAuction(c *gin.Context) {
	const op = "deleteAuction"
	auction, ok := s.loadManagedAuction(c, op)
	if !ok {
		return
	}

	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var bids int64
		err := tx.Model(&models.Offer{}).
			Where("artwork_id IN (?)", tx.Model(&models.Artwork{}).Select("id").Where("auction_id = ?", auction.ID)).
			Count(&bids).Error
		if err != nil {
			return fmt.Errorf("[%s] Fail to count offers, err=%w", op, err)
		}
		if bids > 0 {
			return errHasBids
		}
		if err := tx.Where("auction_id = ?", auction.ID).Delete(&models.Artwork{}).Error; err != nil {
			return fmt.Errorf("[%s] Fail to delete artworks, err=%w", op, err)
		}
		if err := tx.Delete(&auction).Error; err != nil {
			return fmt.Errorf("[%s] Fail to delete auction, err=%w", op, err)
		}
		return nil
	})
	if errors.Is(err, errHasBids) {
		abortWithError(c, http.StatusConflict, "Cannot delete an auction that has bids")
		return
	}
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}
