package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artrise/models"
	"artrise/notify"
)

func TestRegisterVerifyLogin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/register", registerRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct horse",
		Role:     "seller",
	}, nil)
	requireStatus(t, w, http.StatusCreated)
	body := decodeBody[map[string]map[string]any](t, w)
	assert.Equal(t, "alice", body["user"]["username"])
	assert.Equal(t, "alice@example.com", body["user"]["email"])
	assert.Equal(t, "seller", body["user"]["role"])
	assert.NotContains(t, w.Body.String(), "passwordHash")
	assert.NotContains(t, w.Body.String(), "correct horse")

	var user models.User
	require.NoError(t, ts.db.Where("username = ?", "alice").Take(&user).Error)
	require.NotNil(t, user.VerificationToken)
	assert.False(t, user.EmailVerified)

	// 驗證信帶著同一個token
	n := ts.waitNotification(t, notify.KindEmailVerification, user.ID)
	assert.Equal(t, *user.VerificationToken, n.Token)

	w = ts.do(t, http.MethodGet, "/auth/verify-email?token="+n.Token, nil, nil)
	requireStatus(t, w, http.StatusOK)
	require.NoError(t, ts.db.Where("id = ?", user.ID).Take(&user).Error)
	assert.True(t, user.EmailVerified)
	assert.Nil(t, user.VerificationToken)

	// token只能使用一次
	w = ts.do(t, http.MethodGet, "/auth/verify-email?token="+n.Token, nil, nil)
	requireStatus(t, w, http.StatusBadRequest)

	// 以email登入並取得cookie
	w = ts.do(t, http.MethodPost, "/auth/login", loginRequest{Login: "ALICE@example.com", Password: "correct horse"}, nil)
	requireStatus(t, w, http.StatusOK)
	login := decodeBody[authResponse](t, w)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, user.ID, login.User.ID)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "access_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 7*24*60*60, cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	ts.router.ServeHTTP(me, req)
	requireStatus(t, me, http.StatusOK)
	assert.Contains(t, me.Body.String(), `"username":"alice"`)
}

func TestRegister_Rejects(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/auth/register", registerRequest{Username: "bob", Email: "bob@example.com", Password: "password1"}, nil)
	requireStatus(t, w, http.StatusCreated)
	assert.Equal(t, "buyer", decodeBody[map[string]map[string]any](t, w)["user"]["role"])

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{
			name:   "重複的使用者名稱",
			body:   registerRequest{Username: "bob", Email: "other@example.com", Password: "password1"},
			status: http.StatusConflict,
		},
		{
			name:   "重複的email",
			body:   registerRequest{Username: "bobby", Email: "BOB@example.com", Password: "password1"},
			status: http.StatusConflict,
		},
		{
			name:   "不能自行註冊管理員",
			body:   registerRequest{Username: "mallory", Email: "mallory@example.com", Password: "password1", Role: "admin"},
			status: http.StatusBadRequest,
		},
		{
			name:   "密碼太短",
			body:   registerRequest{Username: "carol", Email: "carol@example.com", Password: "short"},
			status: http.StatusBadRequest,
		},
		{
			name:   "email格式錯誤",
			body:   registerRequest{Username: "carol", Email: "carol", Password: "password1"},
			status: http.StatusBadRequest,
		},
		{
			name:   "JSON格式錯誤",
			body:   `{invalid json}`,
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/auth/register", tt.body, nil)
			requireStatus(t, w, tt.status)
			assert.NotEmpty(t, decodeBody[errorResponse](t, w).Error)
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/auth/register", registerRequest{Username: "bob", Email: "bob@example.com", Password: "password1"}, nil)
	requireStatus(t, w, http.StatusCreated)

	w = ts.do(t, http.MethodPost, "/auth/login", loginRequest{Login: "bob", Password: "password2"}, nil)
	requireStatus(t, w, http.StatusUnauthorized)
	w = ts.do(t, http.MethodPost, "/auth/login", loginRequest{Login: "nobody", Password: "password1"}, nil)
	requireStatus(t, w, http.StatusUnauthorized)
	w = ts.do(t, http.MethodPost, "/auth/login", loginRequest{Login: "bob", Password: "password1"}, nil)
	requireStatus(t, w, http.StatusOK)
}

func TestLogin_ProductionCookie(t *testing.T) {
	ts := newTestServer(t, func(c *ServerConfig) {
		c.Auth.Production = true
		c.Auth.TokenExpiryDays = 1
	})
	w := ts.do(t, http.MethodPost, "/auth/register", registerRequest{Username: "bob", Email: "bob@example.com", Password: "password1"}, nil)
	requireStatus(t, w, http.StatusCreated)

	w = ts.do(t, http.MethodPost, "/auth/login", loginRequest{Login: "bob", Password: "password1"}, nil)
	requireStatus(t, w, http.StatusOK)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	assert.Equal(t, 24*60*60, cookies[0].MaxAge)

	w = ts.do(t, http.MethodPost, "/auth/logout", nil, nil)
	requireStatus(t, w, http.StatusOK)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestVerifyEmail_Expired(t *testing.T) {
	ts := newTestServer(t)
	token := "expired-token"
	expiresAt := time.Now().UTC().Add(-time.Minute)
	user := models.User{
		Username:              "late",
		Email:                 "late@example.com",
		Role:                  models.RoleBuyer,
		VerificationToken:     &token,
		VerificationExpiresAt: &expiresAt,
	}
	require.NoError(t, ts.db.Create(&user).Error)

	w := ts.do(t, http.MethodGet, "/auth/verify-email?token="+token, nil, nil)
	requireStatus(t, w, http.StatusBadRequest)
	w = ts.do(t, http.MethodGet, "/auth/verify-email", nil, nil)
	requireStatus(t, w, http.StatusBadRequest)
}

func TestRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "沒有token", status: http.StatusUnauthorized},
		{name: "無效的token", header: "Bearer nonsense", status: http.StatusUnauthorized},
		{name: "不是Bearer", header: "Basic dXNlcjpwYXNz", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			ts.router.ServeHTTP(w, req)
			requireStatus(t, w, tt.status)
		})
	}

	// 使用者被刪除後token失效
	user := models.User{Username: "ghost", Email: "ghost@example.com", Role: models.RoleBuyer}
	require.NoError(t, ts.db.Create(&user).Error)
	token := ts.token(t, user)
	require.NoError(t, ts.db.Delete(&user).Error)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	requireStatus(t, w, http.StatusUnauthorized)
	assert.True(t, strings.Contains(w.Body.String(), "no longer exists"))
}
