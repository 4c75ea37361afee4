package api

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"artrise/models"
)

var ErrInvalidToken = errors.New("invalid access token")

// Claims 是 access token 的內容，subject 為使用者 ID
type Claims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken 為使用者簽發 EdDSA access token
func IssueToken(key ed25519.PrivateKey, user models.User, now time.Time, ttl time.Duration) (string, error) {
	const op = "IssueToken"
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign token, err=%w", op, err)
	}
	return signed, nil
}

// ParseToken 驗證簽章與有效期限並返回 token 內容
func ParseToken(tokenString string, key ed25519.PrivateKey) (*Claims, error) {
	const op = "ParseToken"
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return key.Public(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("[%s] %w, err=%w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("[%s] %w", op, ErrInvalidToken)
	}
	return claims, nil
}
