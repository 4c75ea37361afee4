package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ShippingStatus string

const (
	ShippingPending   ShippingStatus = "pending"
	ShippingConfirmed ShippingStatus = "confirmed"
	ShippingShipped   ShippingStatus = "shipped"
	ShippingDelivered ShippingStatus = "delivered"
)

var shippingStatuses = map[ShippingStatus]struct{}{
	ShippingPending:   {},
	ShippingConfirmed: {},
	ShippingShipped:   {},
	ShippingDelivered: {},
}

func ParseShippingStatus(s string) (ShippingStatus, bool) {
	st := ShippingStatus(s)
	_, ok := shippingStatuses[st]
	return st, ok
}

// ShippingAddress 代表得標者提交的寄送地址
// 只有在作品售出後由得標者建立
type ShippingAddress struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ArtworkID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_shipping_artwork_user;<-:create" json:"artworkId"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_shipping_artwork_user;<-:create" json:"userId"`
	FullName       string         `gorm:"type:varchar(255);not null" json:"fullName"`
	Line1          string         `gorm:"type:varchar(255);not null" json:"line1"`
	Line2          string         `gorm:"type:varchar(255);not null" json:"line2"`
	City           string         `gorm:"type:varchar(128);not null" json:"city"`
	State          string         `gorm:"type:varchar(128);not null" json:"state"`
	PostalCode     string         `gorm:"type:varchar(32);not null" json:"postalCode"`
	Country        string         `gorm:"type:varchar(64);not null" json:"country"`
	Phone          string         `gorm:"type:varchar(32);not null" json:"phone"`
	Status         ShippingStatus `gorm:"type:varchar(16);not null" json:"status"`
	TrackingNumber string         `gorm:"type:varchar(128);not null" json:"trackingNumber"`
	ShippedAt      *time.Time     `json:"shippedAt"`
	DeliveredAt    *time.Time     `json:"deliveredAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *ShippingAddress) BeforeCreate(tx *gorm.DB) error {
	return assignID(&s.ID)
}
