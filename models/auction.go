package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// DefaultMinIncrement 是拍賣未設定最低加價時使用的預設值
	DefaultMinIncrement = decimal.NewFromInt(5)
	// FloorMinIncrement 是最低加價允許的最小值
	FloorMinIncrement = decimal.NewFromInt(1)
)

// Auction 代表藝術家建立的一場拍賣
// 一場拍賣包含多件作品，並定義最低加價與結束時間
type Auction struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ArtistID     uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"artistId"`
	Title        string          `gorm:"type:varchar(255);not null" json:"title"`
	Description  string          `gorm:"type:text;not null" json:"description"`
	BannerURL    string          `gorm:"type:text;not null" json:"bannerUrl"`
	MinIncrement decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"minIncrement"`
	EndTime      time.Time       `gorm:"not null;<-:create" json:"endTime"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 外鍵關聯
	Artist   *User     `gorm:"foreignKey:ArtistID" json:"artist,omitempty"`
	Artworks []Artwork `json:"artworks,omitempty"`
}

func (a *Auction) BeforeCreate(tx *gorm.DB) error {
	a.EndTime = a.EndTime.UTC()
	return assignID(&a.ID)
}

// Increment 返回實際生效的最低加價
func (a Auction) Increment() decimal.Decimal {
	if a.MinIncrement.IsZero() {
		return DefaultMinIncrement
	}
	if a.MinIncrement.LessThan(FloorMinIncrement) {
		return FloorMinIncrement
	}
	return a.MinIncrement
}
