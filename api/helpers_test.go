package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	redisAdapter "artrise/adapters/redis"
	"artrise/models"
	"artrise/models/modeltest"
	"artrise/notify"
)

// fakeUploader 記錄上傳的檔案並返回固定格式的網址
type fakeUploader struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func (u *fakeUploader) Upload(ctx context.Context, key, contentType string, content []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.uploads == nil {
		u.uploads = map[string][]byte{}
	}
	u.uploads[key] = content
	return "https://cdn.example.com/images/" + key, nil
}

type testServer struct {
	db       *gorm.DB
	mr       *miniredis.Miniredis
	redis    *redis.Client
	server   *Server
	router   *gin.Engine
	uploader *fakeUploader
}

func newTestServer(t *testing.T, modify ...func(*ServerConfig)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	config := ServerConfig{
		ID:   "test",
		Auth: AuthConfig{PrivateKey: key},
		S3:   S3Config{RateLimitPerHour: 2},
		Redis: RedisConfig{
			StreamKeys: RedisStreamKeys{BidStream: "bids", NotificationStream: "notifications"},
		},
	}
	for _, m := range modify {
		m(&config)
	}

	db := modeltest.NewDB(t)
	uploader := &fakeUploader{}
	server, err := NewServerWithDependencies(config, Dependencies{
		DB:       db,
		Redis:    client,
		Uploader: uploader,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	// 只啟動 producer，通知留在stream中供測試讀取
	server.producer.Start()
	t.Cleanup(server.producer.Close)

	return &testServer{
		db:       db,
		mr:       mr,
		redis:    client,
		server:   server,
		router:   server.Router(),
		uploader: uploader,
	}
}

func (ts *testServer) token(t *testing.T, user models.User) string {
	t.Helper()
	token, err := IssueToken(ts.server.config.Auth.PrivateKey, user, time.Now(), time.Hour)
	require.NoError(t, err)
	return token
}

// do 送出 JSON 請求，user 不為 nil 時帶上 Bearer token
func (ts *testServer) do(t *testing.T, method, path string, body any, user *models.User) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		reader = jsonBody(t, b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, *user))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// notifications 讀出目前寫入stream的所有通知
func (ts *testServer) notifications(t *testing.T) []notify.Notification {
	t.Helper()
	messages, err := ts.redis.XRange(context.Background(), "notifications", "-", "+").Result()
	require.NoError(t, err)
	result := make([]notify.Notification, 0, len(messages))
	for _, m := range messages {
		n, err := redisAdapter.DefaultParseFromMessage[notify.Notification](m.Values)
		require.NoError(t, err)
		result = append(result, n)
	}
	return result
}

// waitNotification 等待寄給 userID 的指定種類通知出現在stream中
func (ts *testServer) waitNotification(t *testing.T, kind notify.Kind, userID uuid.UUID) notify.Notification {
	t.Helper()
	var found notify.Notification
	require.Eventually(t, func() bool {
		for _, n := range ts.notifications(t) {
			if n.Kind == kind && n.UserID == userID {
				found = n
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
	return found
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	encoded, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(encoded)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// decimalField 讀出 JSON 中的金額，接受數字或字串
func decimalField(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		require.NoError(t, err)
		return d
	case string:
		d, err := decimal.NewFromString(n)
		require.NoError(t, err)
		return d
	}
	require.Failf(t, "unexpected amount", "expected decimal number, got %v", v)
	return decimal.Zero
}
