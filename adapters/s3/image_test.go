package s3_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"artrise/adapters/s3"
)

func TestDetectSecureImage(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantMIME string
		wantExt  string
		wantOk   bool
	}{
		{name: "png", content: "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", wantMIME: "image/png", wantExt: "png", wantOk: true},
		{name: "jpeg", content: "\xff\xd8\xff\xe0\x00\x10JFIF", wantMIME: "image/jpeg", wantExt: "jpeg", wantOk: true},
		{name: "gif", content: "GIF89a\x01\x00\x01\x00", wantMIME: "image/gif", wantExt: "gif", wantOk: true},
		{name: "webp", content: "RIFF\x00\x00\x00\x00WEBPVP", wantMIME: "image/webp", wantExt: "webp", wantOk: true},
		{name: "pdf不是圖片", content: "%PDF-1.7", wantMIME: "application/pdf"},
		{name: "html", content: "<html><script>alert(1)</script></html>", wantMIME: "text/html; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mimeType, ext, ok := s3.DetectSecureImage([]byte(tt.content))
			assert.Equal(t, tt.wantMIME, mimeType)
			assert.Equal(t, tt.wantExt, ext)
			assert.Equal(t, tt.wantOk, ok)
		})
	}

	// svg 可以夾帶腳本
	_, _, ok := s3.DetectSecureImage([]byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`))
	assert.False(t, ok)
}

func TestFormatBytes(t *testing.T) {
	for n, want := range map[int64]string{
		0:       "0 bytes",
		1023:    "1023 bytes",
		1536:    "1.50 KB",
		5 << 20: "5.00 MB",
		3 << 30: "3.00 GB",
		1 << 50: "1.00 PB",
	} {
		assert.Equal(t, want, s3.FormatBytes(n), n)
	}
}
