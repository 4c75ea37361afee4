package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

var paymentStatuses = map[PaymentStatus]struct{}{
	PaymentPending:   {},
	PaymentSucceeded: {},
	PaymentFailed:    {},
	PaymentRefunded:  {},
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	st := PaymentStatus(s)
	_, ok := paymentStatuses[st]
	return st, ok
}

// Payment 記錄買家對訂單的付款，本系統不串接金流，只保存結果
type Payment struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"orderId"`
	PayerID   uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"payerId"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency  string          `gorm:"type:varchar(8);not null" json:"currency"`
	Method    string          `gorm:"type:varchar(32);not null" json:"method"`
	Status    PaymentStatus   `gorm:"type:varchar(16);not null" json:"status"`
	Reference string          `gorm:"type:text;not null" json:"reference"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	return assignID(&p.ID)
}

// OrderStatus 返回付款結果對應的訂單狀態
func (s PaymentStatus) OrderStatus() OrderStatus {
	switch s {
	case PaymentSucceeded:
		return OrderPaid
	case PaymentFailed:
		return OrderFailed
	case PaymentRefunded:
		return OrderRefunded
	default:
		return OrderPending
	}
}
