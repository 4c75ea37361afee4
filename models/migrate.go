package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// All 列出所有需要建立資料表的模型
var All = []any{
	&User{},
	&Auction{},
	&Artwork{},
	&Offer{},
	&Order{},
	&Payment{},
	&ShippingAddress{},
	&Image{},
}

// NewGormConfig 建立共用的 gorm 設定，時間一律以 UTC 寫入
func NewGormConfig(tablePrefix string) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: tablePrefix,
		},
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All...); err != nil {
		return fmt.Errorf("[AutoMigrate] Fail to migrate schema, err=%w", err)
	}
	return nil
}
