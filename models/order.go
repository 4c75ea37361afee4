package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderFailed   OrderStatus = "failed"
	OrderRefunded OrderStatus = "refunded"
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderPending:  {},
	OrderPaid:     {},
	OrderFailed:   {},
	OrderRefunded: {},
}

// ParseOrderStatus 驗證訂單狀態
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := orderStatuses[st]
	return st, ok
}

// Order 代表結標後產生的訂單，每件售出的作品只有一筆
type Order struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ArtworkID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex;<-:create" json:"artworkId"`
	BuyerID          uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"buyerId"`
	SellerID         uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"sellerId"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string          `gorm:"type:varchar(8);not null" json:"currency"`
	Status           OrderStatus     `gorm:"type:varchar(16);not null" json:"status"`
	PaymentReference string          `gorm:"type:text;not null" json:"paymentReference"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Artwork *Artwork `json:"artwork,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	return assignID(&o.ID)
}
