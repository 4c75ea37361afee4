package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"artrise/adapters/s3"
	"artrise/api"
	"artrise/notify"
	"artrise/settlement"
)

func ParseArgs() (Args, error) {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "address the HTTP server listens on")
	pflag.String("server-id", "", "instance name in the notification consumer group, defaults to the hostname")
	pflag.String("log-level", "info", "debug, info, warn or error")
	pflag.String("log-format", "json", "json or text")
	pflag.Duration("shutdown-timeout", 15*time.Second, "")

	// auth config
	pflag.String("auth-private-key", "", "base64 encoded Ed25519 seed or private key used to sign access tokens")
	pflag.String("auth-cookie-name", "access_token", "")
	pflag.Int("auth-token-expiry-days", 7, "")
	pflag.Bool("production", false, "use Secure and SameSite=Strict cookies")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-region", "auto", "")
	pflag.String("s3-bucket", "", "image upload is disabled when empty")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-key-prefix", "images", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Int64("s3-rate-limit-per-hour", 30, "images a user may upload per hour, 0 disables the limit")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-consumer-group", "artrise-notify", "")
	pflag.Int64("redis-stream-max-len", 100000, "approximate length kept in each stream, 0 keeps everything")

	// redis stream keys
	pflag.String("redis-stream-key-for-bids", "artrise-bid-stream", "")
	pflag.String("redis-stream-key-for-notifications", "artrise-notification-stream", "")

	// mail config
	pflag.String("smtp-host", "", "notifications are only logged when empty")
	pflag.Int("smtp-port", 587, "")
	pflag.String("smtp-username", "", "")
	pflag.String("smtp-password", "", "")
	pflag.String("smtp-from", "popAUC <no-reply@artrise.local>", "")
	pflag.String("app-base-url", "http://localhost:3000", "frontend URL used in email links")

	// scheduler config
	pflag.String("scheduler-settle-spec", settlement.DefaultSchedulerConfig.SettleSpec, "")
	pflag.String("scheduler-ending-soon-spec", settlement.DefaultSchedulerConfig.EndingSoonSpec, "")
	pflag.Duration("scheduler-run-timeout", settlement.DefaultSchedulerConfig.RunTimeout, "")

	// bind pflag to viper
	pflag.Parse()
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return Args{}, fmt.Errorf("[ParseArgs] Fail to bind flags, err=%w", err)
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix("ARTRISE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	privateKey, err := parsePrivateKey(viper.GetString("auth-private-key"))
	if err != nil {
		return Args{}, err
	}
	serverID := viper.GetString("server-id")
	if serverID == "" {
		serverID, _ = os.Hostname()
	}

	// initial arguments
	return Args{
		ServerURL:       viper.GetString("server-url"),
		LogLevel:        viper.GetString("log-level"),
		LogFormat:       viper.GetString("log-format"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
		ServerConfig: api.ServerConfig{
			ID: serverID,
			Auth: api.AuthConfig{
				PrivateKey:      privateKey,
				CookieName:      viper.GetString("auth-cookie-name"),
				TokenExpiryDays: viper.GetInt("auth-token-expiry-days"),
				Production:      viper.GetBool("production"),
			},
			S3: api.S3Config{
				Config: s3.Config{
					Endpoint:        viper.GetString("s3-endpoint"),
					Region:          viper.GetString("s3-region"),
					Bucket:          viper.GetString("s3-bucket"),
					PublicBaseURL:   viper.GetString("s3-public-base-url"),
					KeyPrefix:       viper.GetString("s3-key-prefix"),
					AccessKeyID:     viper.GetString("s3-access-key-id"),
					SecretAccessKey: viper.GetString("s3-secret-access-key"),
				},
				RateLimitPerHour: viper.GetInt64("s3-rate-limit-per-hour"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:          viper.GetString("redis-addr"),
				Password:      viper.GetString("redis-password"),
				DB:            viper.GetInt("redis-db"),
				ConsumerGroup: viper.GetString("redis-consumer-group"),
				StreamMaxLen:  viper.GetInt64("redis-stream-max-len"),
				StreamKeys: api.RedisStreamKeys{
					BidStream:          viper.GetString("redis-stream-key-for-bids"),
					NotificationStream: viper.GetString("redis-stream-key-for-notifications"),
				},
			},
			Mail: api.MailConfig{
				SMTPConfig: notify.SMTPConfig{
					Host:     viper.GetString("smtp-host"),
					Port:     viper.GetInt("smtp-port"),
					Username: viper.GetString("smtp-username"),
					Password: viper.GetString("smtp-password"),
					From:     viper.GetString("smtp-from"),
				},
				BaseURL: viper.GetString("app-base-url"),
			},
			Scheduler: settlement.SchedulerConfig{
				SettleSpec:     viper.GetString("scheduler-settle-spec"),
				EndingSoonSpec: viper.GetString("scheduler-ending-soon-spec"),
				RunTimeout:     viper.GetDuration("scheduler-run-timeout"),
			},
		},
	}, nil
}

// parsePrivateKey 接受 32 bytes 的 seed 或 64 bytes 的私鑰，沒有設定時產生臨時金鑰
func parsePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	const op = "parsePrivateKey"
	if encoded == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to generate key, err=%w", op, err)
		}
		slog.Warn("auth-private-key is not set, using an ephemeral key; tokens will not survive a restart")
		return key, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode key, err=%w", op, err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("[%s] Invalid key length %d", op, len(raw))
	}
}

type Args struct {
	ServerURL       string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ServerConfig    api.ServerConfig
}

func (args Args) Validate() error {
	var errs []error
	if args.ServerURL == "" {
		errs = append(errs, errors.New("server-url is required"))
	}
	if args.ServerConfig.DB.Host == "" || args.ServerConfig.DB.Database == "" {
		errs = append(errs, errors.New("db-host and db-database are required"))
	}
	if args.ServerConfig.Redis.Addr == "" {
		errs = append(errs, errors.New("redis-addr is required"))
	}
	if args.ServerConfig.S3.Bucket != "" && args.ServerConfig.S3.PublicBaseURL == "" {
		errs = append(errs, errors.New("s3-public-base-url is required when s3-bucket is set"))
	}
	return errors.Join(errs...)
}

func (args Args) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(args.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if args.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, options))
}
