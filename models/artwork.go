package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ArtworkStatus 代表作品在拍賣中的狀態
type ArtworkStatus string

const (
	ArtworkDraft  ArtworkStatus = "draft"
	ArtworkLive   ArtworkStatus = "live"
	ArtworkSold   ArtworkStatus = "sold"
	ArtworkUnsold ArtworkStatus = "unsold"
)

// Artwork 代表拍賣中的一件作品
// 狀態只會由結標流程從 live 轉為 sold 或 unsold
type Artwork struct {
	ID                 uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	AuctionID          uuid.UUID           `gorm:"type:uuid;not null;index;<-:create" json:"auctionId"`
	Title              string              `gorm:"type:varchar(255);not null" json:"title"`
	Description        string              `gorm:"type:text;not null" json:"description"`
	Price              decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"price"`
	Currency           string              `gorm:"type:varchar(8);not null" json:"currency"`
	Images             []string            `gorm:"type:text;serializer:json" json:"images"`
	StartPrice         decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"startPrice"`
	EndPrice           decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"endPrice"`
	Status             ArtworkStatus       `gorm:"type:varchar(16);not null;index" json:"status"`
	EndTime            time.Time           `gorm:"not null;index" json:"endTime"`
	EndingSoonNotified bool                `gorm:"not null" json:"-"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Auction *Auction `json:"auction,omitempty"`
}

func (a *Artwork) BeforeCreate(tx *gorm.DB) error {
	a.EndTime = a.EndTime.UTC()
	if a.Images == nil {
		a.Images = []string{}
	}
	return assignID(&a.ID)
}

// IsOpen 判斷作品在指定時間是否仍可出價
func (a Artwork) IsOpen(now time.Time) bool {
	return a.Status == ArtworkLive && now.Before(a.EndTime)
}
