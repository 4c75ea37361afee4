package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BidHistoryEntry 是出價紀錄中的一筆金額與時間
type BidHistoryEntry struct {
	Amount decimal.Decimal `json:"amount"`
	Time   time.Time       `json:"time"`
}

// Offer 代表出價者對某件作品的出價
// 每個 (作品, 出價者) 只有一筆，建立時以第一次出價作為歷史紀錄的第一筆，
// 加價時更新金額並把舊金額附加到歷史紀錄
type Offer struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ArtworkID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_offer_artwork_user;<-:create" json:"artworkId"`
	UserID    uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_offer_artwork_user;index;<-:create" json:"userId"`
	Amount    decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	History   []BidHistoryEntry `gorm:"type:text;serializer:json" json:"history"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// 外鍵關聯
	User    *User    `json:"user,omitempty"`
	Artwork *Artwork `json:"artwork,omitempty"`
}

func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	if o.History == nil {
		o.History = []BidHistoryEntry{}
	}
	return assignID(&o.ID)
}

// BidCount 返回這筆出價累計被接受的次數
func (o Offer) BidCount() int {
	return len(o.History)
}
