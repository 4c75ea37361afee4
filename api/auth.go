package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"artrise/models"
	"artrise/notify"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     string `json:"role" binding:"omitempty,oneof=buyer seller"`
}

type loginRequest struct {
	// Login 可以是使用者名稱或電子郵件
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register a new account
// (POST /auth/register)
func (s *Server) register(c *gin.Context) {
	const op = "register"
	var request registerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	request.Email = strings.ToLower(strings.TrimSpace(request.Email))
	request.Username = strings.TrimSpace(request.Username)

	// 管理員只能由其他管理員指派
	role := models.RoleBuyer
	if request.Role != "" {
		role = models.Role(request.Role)
	}

	db := s.db.WithContext(c.Request.Context())
	var count int64
	if err := db.Model(&models.User{}).Where("username = ? OR email = ?", request.Username, request.Email).Count(&count).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to check existing user, err=%w", op, err))
		return
	}
	if count > 0 {
		abortWithError(c, http.StatusConflict, "Username or email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to hash password, err=%w", op, err))
		return
	}
	token, err := generateToken()
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	expiresAt := s.now().Add(s.config.Auth.verificationTTL())
	user := models.User{
		Username:              request.Username,
		Email:                 request.Email,
		PasswordHash:          string(hash),
		Role:                  role,
		VerificationToken:     &token,
		VerificationExpiresAt: &expiresAt,
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			abortWithError(c, http.StatusConflict, "Username or email already registered")
			return
		}
		s.respondError(c, op, fmt.Errorf("[%s] Fail to create user, err=%w", op, err))
		return
	}

	s.dispatcher.Dispatch(notify.Notification{
		Kind:    notify.KindEmailVerification,
		UserID:  user.ID,
		Token:   token,
		EndTime: expiresAt,
	})
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Log in with username or email
// (POST /auth/login)
func (s *Server) login(c *gin.Context) {
	const op = "login"
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	login := strings.TrimSpace(request.Login)
	var user models.User
	err := s.db.WithContext(c.Request.Context()).
		Where("username = ? OR email = ?", login, strings.ToLower(login)).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		abortWithError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to find user, err=%w", op, err))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(request.Password)); err != nil {
		abortWithError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	ttl := s.config.Auth.tokenTTL()
	token, err := IssueToken(s.config.Auth.PrivateKey, user, s.now(), ttl)
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	s.setTokenCookie(c, token, int(ttl.Seconds()))
	c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

// Log out
// (POST /auth/logout)
func (s *Server) logout(c *gin.Context) {
	// 只清除cookie，不撤銷token
	s.setTokenCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Verify email address
// (GET /auth/verify-email?token=)
func (s *Server) verifyEmail(c *gin.Context) {
	const op = "verifyEmail"
	token := c.Query("token")
	if token == "" {
		abortWithError(c, http.StatusBadRequest, "token is required")
		return
	}

	db := s.db.WithContext(c.Request.Context())
	var user models.User
	err := db.Where("verification_token = ?", token).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		abortWithError(c, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}
	if err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to find user, err=%w", op, err))
		return
	}
	if user.VerificationExpiresAt == nil || !s.now().Before(*user.VerificationExpiresAt) {
		abortWithError(c, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}

	err = db.Model(&user).Updates(map[string]any{
		"email_verified":          true,
		"verification_token":      nil,
		"verification_expires_at": nil,
	}).Error
	if err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to verify user, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Get the current user
// (GET /auth/me)
func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}

func (s *Server) setTokenCookie(c *gin.Context, token string, maxAge int) {
	if s.config.Auth.Production {
		c.SetSameSite(http.SameSiteStrictMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(s.config.Auth.cookieName(), token, maxAge, "/", "", s.config.Auth.Production, true)
}

func generateToken() (string, error) {
	const op = "generateToken"
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate token, err=%w", op, err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
