package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"artrise/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type page struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// readPage 讀取 page 與 limit 參數，非法值使用預設值
func readPage(c *gin.Context) page {
	p := page{Page: 1, Limit: defaultPageSize}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		p.Limit = min(v, maxPageSize)
	}
	return p
}

func (p page) scope(db *gorm.DB) *gorm.DB {
	return db.Offset((p.Page - 1) * p.Limit).Limit(p.Limit)
}

// canManage 判斷使用者是否為擁有者或管理員
func canManage(user models.User, ownerID uuid.UUID) bool {
	return user.Role == models.RoleAdmin || user.ID == ownerID
}
