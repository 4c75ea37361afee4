package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image 代表上傳到物件儲存的圖片
// 包含圖片 URL 以及上傳者的使用者 ID，用於計算上傳頻率
type Image struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UploaderID uuid.UUID `gorm:"type:uuid;not null;index;<-:create" json:"uploaderId"`
	Url        string    `gorm:"type:text;not null;<-:create" json:"url"`

	CreatedAt time.Time `json:"createdAt"`

	Uploader *User `gorm:"foreignKey:UploaderID" json:"-"`
}

func (i *Image) BeforeCreate(tx *gorm.DB) error {
	return assignID(&i.ID)
}
