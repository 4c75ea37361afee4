package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 代表拍賣系統中的使用者
// 包含登入資訊、角色以及電子郵件驗證狀態
type User struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username              string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"username"`
	Email                 string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"email,omitempty"`
	PasswordHash          string     `gorm:"type:text;not null" json:"-"`
	Role                  Role       `gorm:"type:varchar(16);not null" json:"role,omitempty"`
	EmailVerified         bool       `gorm:"not null" json:"emailVerified"`
	VerificationToken     *string    `gorm:"type:varchar(64);index" json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	AvatarURL             string     `gorm:"type:text;not null" json:"avatarUrl"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	return assignID(&u.ID)
}
