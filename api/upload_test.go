package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artrise/models"
	"artrise/models/modeltest"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func (ts *testServer) upload(t *testing.T, user models.User, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, user))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestUploadImage(t *testing.T) {
	ts := newTestServer(t)
	user := modeltest.CreateUser(t, ts.db, "artist", models.RoleSeller)

	tests := []struct {
		name        string
		contentType string
		body        []byte
		status      int
		message     string
	}{
		{
			name:        "svg可以夾帶腳本",
			contentType: "image/svg+xml",
			body:        []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`),
			status:      http.StatusBadRequest,
			message:     "Invalid image type",
		},
		{
			name:        "宣稱是png的文字檔",
			contentType: "image/png",
			body:        []byte("just some text"),
			status:      http.StatusBadRequest,
			message:     "Invalid image type",
		},
		{
			name:        "超過5MB",
			contentType: "image/png",
			body:        append(append([]byte{}, pngHeader...), make([]byte, maxImageSize)...),
			status:      http.StatusBadRequest,
			message:     "Image exceeds 5.00 MB",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.upload(t, user, tt.contentType, tt.body)
			requireStatus(t, w, tt.status)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}

	w := ts.upload(t, user, "image/png", pngHeader)
	requireStatus(t, w, http.StatusCreated)
	body := decodeBody[map[string]any](t, w)
	url, _ := body["url"].(string)
	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/images/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)
	assert.Equal(t, url, w.Header().Get("Location"))

	ts.uploader.mu.Lock()
	assert.Len(t, ts.uploader.uploads, 1)
	ts.uploader.mu.Unlock()

	var images []models.Image
	require.NoError(t, ts.db.Where("uploader_id = ?", user.ID).Find(&images).Error)
	require.Len(t, images, 1)
	assert.Equal(t, url, images[0].Url)
}

func TestUploadImage_Multipart(t *testing.T) {
	ts := newTestServer(t)
	user := modeltest.CreateUser(t, ts.db, "artist", models.RoleSeller)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "photo.gif")
	require.NoError(t, err)
	_, err = part.Write([]byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	w := ts.upload(t, user, form.FormDataContentType(), buf.Bytes())
	requireStatus(t, w, http.StatusCreated)
	url, _ := decodeBody[map[string]any](t, w)["url"].(string)
	assert.True(t, strings.HasSuffix(url, ".gif"), url)
}

func TestUploadImage_RateLimit(t *testing.T) {
	ts := newTestServer(t)
	user := modeltest.CreateUser(t, ts.db, "artist", models.RoleSeller)
	other := modeltest.CreateUser(t, ts.db, "other", models.RoleSeller)

	// 每小時上限為 2
	for range 2 {
		requireStatus(t, ts.upload(t, user, "image/png", pngHeader), http.StatusCreated)
	}
	requireStatus(t, ts.upload(t, user, "image/png", pngHeader), http.StatusTooManyRequests)
	requireStatus(t, ts.upload(t, other, "image/png", pngHeader), http.StatusCreated)
}

func TestUploadImage_NotConfigured(t *testing.T) {
	ts := newTestServer(t)
	ts.server.uploader = nil
	user := modeltest.CreateUser(t, ts.db, "artist", models.RoleSeller)
	requireStatus(t, ts.upload(t, user, "image/png", pngHeader), http.StatusServiceUnavailable)
}
