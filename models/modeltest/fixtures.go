package modeltest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"artrise/models"
)

// CreateUser 建立一個使用者，email 由 username 推得
func CreateUser(t testing.TB, db *gorm.DB, username string, role models.Role) models.User {
	t.Helper()
	user := models.User{
		Username:      username,
		Email:         username + "@example.com",
		Role:          role,
		EmailVerified: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// CreateAuction 建立一場一小時後結束、最低加價 5 的拍賣
func CreateAuction(t testing.TB, db *gorm.DB, artist models.User, modify ...func(*models.Auction)) models.Auction {
	t.Helper()
	auction := models.Auction{
		ArtistID:     artist.ID,
		Title:        "Spring Sale",
		Description:  "works on paper",
		MinIncrement: decimal.NewFromInt(5),
		EndTime:      time.Now().UTC().Add(time.Hour),
	}
	for _, m := range modify {
		m(&auction)
	}
	require.NoError(t, db.Create(&auction).Error)
	return auction
}

// CreateArtwork 建立一件起標價 100 的上架作品，結束時間與拍賣相同
func CreateArtwork(t testing.TB, db *gorm.DB, auction models.Auction, modify ...func(*models.Artwork)) models.Artwork {
	t.Helper()
	artwork := models.Artwork{
		AuctionID:   auction.ID,
		Title:       "Untitled",
		Description: "oil on canvas",
		Price:       decimal.NewFromInt(500),
		Currency:    "USD",
		StartPrice:  decimal.NewFromInt(100),
		Status:      models.ArtworkLive,
		EndTime:     auction.EndTime,
	}
	for _, m := range modify {
		m(&artwork)
	}
	require.NoError(t, db.Create(&artwork).Error)
	return artwork
}

// CreateOffer 直接寫入一筆出價，不經過出價規則
func CreateOffer(t testing.TB, db *gorm.DB, artwork models.Artwork, user models.User, amount int64, modify ...func(*models.Offer)) models.Offer {
	t.Helper()
	offer := models.Offer{
		ArtworkID: artwork.ID,
		UserID:    user.ID,
		Amount:    decimal.NewFromInt(amount),
		History:   []models.BidHistoryEntry{{Amount: decimal.NewFromInt(amount), Time: time.Now().UTC()}},
	}
	for _, m := range modify {
		m(&offer)
	}
	require.NoError(t, db.Create(&offer).Error)
	return offer
}
