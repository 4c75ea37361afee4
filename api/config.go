package api

import (
	"crypto/ed25519"
	"time"

	internalS3 "artrise/adapters/s3"
	"artrise/notify"
	"artrise/settlement"
)

type ServerConfig struct {
	// ID 是這個實例在 consumer group 中的名稱
	ID        string
	DB        DBConfig
	Redis     RedisConfig
	S3        S3Config
	Auth      AuthConfig
	Mail      MailConfig
	Scheduler settlement.SchedulerConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	StreamKeys    RedisStreamKeys
	ConsumerGroup string
	StreamMaxLen  int64
}

type RedisStreamKeys struct {
	BidStream          string
	NotificationStream string
}

type S3Config struct {
	internalS3.Config
	// RateLimitPerHour 是每個使用者每小時可上傳的圖片數量，0 代表不限制
	RateLimitPerHour int64
}

type AuthConfig struct {
	PrivateKey ed25519.PrivateKey
	CookieName string
	// TokenExpiryDays 是 access token 與 cookie 的有效天數
	TokenExpiryDays int
	// Production 為 true 時 cookie 使用 Secure 與 SameSite=Strict
	Production      bool
	VerificationTTL time.Duration
}

type MailConfig struct {
	notify.SMTPConfig
	// BaseURL 是信件中連結指向的前端網址
	BaseURL string
}

func (c AuthConfig) tokenTTL() time.Duration {
	days := c.TokenExpiryDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c AuthConfig) cookieName() string {
	if c.CookieName == "" {
		return "access_token"
	}
	return c.CookieName
}

func (c AuthConfig) verificationTTL() time.Duration {
	if c.VerificationTTL <= 0 {
		return 24 * time.Hour
	}
	return c.VerificationTTL
}
