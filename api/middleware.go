package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"artrise/models"
)

const userContextKey = "artrise.user"

// tokenFromRequest 依序從 cookie 與 Authorization header 取出 access token
func (s *Server) tokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(s.config.Auth.cookieName()); err == nil && token != "" {
		return token
	}
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// requireAuth 驗證 access token 並載入目前的使用者
// 角色以資料庫為準，管理員調整角色後不需要重新登入
func (s *Server) requireAuth(c *gin.Context) {
	const op = "requireAuth"
	tokenString := s.tokenFromRequest(c)
	if tokenString == "" {
		abortWithError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	claims, err := ParseToken(tokenString, s.config.Auth.PrivateKey)
	if err != nil {
		s.logger.Debug("Fail to parse access token", slog.String("op", op), slog.Any("error", err))
		abortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	var user models.User
	err = s.db.WithContext(c.Request.Context()).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		abortWithError(c, http.StatusUnauthorized, "User no longer exists")
		return
	}
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func currentUser(c *gin.Context) models.User {
	return c.MustGet(userContextKey).(models.User)
}

// requireRoles 只允許指定角色通過，必須放在 requireAuth 之後
func requireRoles(allowed ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).Role.In(allowed...) {
			abortWithError(c, http.StatusForbidden, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// requestLogger 依狀態碼決定請求日誌的等級
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.LogAttrs(c.Request.Context(), level, "HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("clientIp", c.ClientIP()),
		)
	}
}
