package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"artrise/models"
)

type updateMeRequest struct {
	Username  *string `json:"username" binding:"omitempty,min=3,max=32"`
	AvatarURL *string `json:"avatarUrl" binding:"omitempty,max=2048"`
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin buyer seller"`
}

// publicUser 只保留可以公開的欄位
func publicUser(user models.User) gin.H {
	return gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"avatarUrl": user.AvatarURL,
		"createdAt": user.CreatedAt,
	}
}

// List users
// (GET /users)
func (s *Server) listUsers(c *gin.Context) {
	const op = "listUsers"
	var users []models.User
	if err := s.db.WithContext(c.Request.Context()).Order("created_at ASC").Find(&users).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to list users, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Get a user's public profile
// (GET /users/:id)
func (s *Server) getUser(c *gin.Context) {
	const op = "getUser"
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var user models.User
	if err := s.db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&user).Error; err != nil {
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": publicUser(user)})
}

// Update the current user's profile
// (PATCH /users/me)
func (s *Server) updateMe(c *gin.Context) {
	const op = "updateMe"
	var request updateMeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	user := currentUser(c)
	updates := map[string]any{}
	if request.Username != nil {
		updates["username"] = strings.TrimSpace(*request.Username)
	}
	if request.AvatarURL != nil {
		updates["avatar_url"] = *request.AvatarURL
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{"user": user})
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Model(&user).Updates(updates).Error; err != nil {
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Change a user's role
// (PATCH /users/:id/role)
func (s *Server) updateUserRole(c *gin.Context) {
	const op = "updateUserRole"
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var request updateRoleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	role, _ := models.ParseRole(request.Role)

	db := s.db.WithContext(c.Request.Context())
	var user models.User
	if err := db.Where("id = ?", id).Take(&user).Error; err != nil {
		s.respondError(c, op, err)
		return
	}
	if err := db.Model(&user).Update("role", role).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to update role, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
