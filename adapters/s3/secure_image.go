package s3

import "net/http"

// imageExtensions 是允許上傳的圖片類型與副檔名
// svg 可以夾帶腳本，不在清單中
var imageExtensions = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/webp": "webp",
}

// DetectSecureImage 以檔案內容判斷MIME類型，不信任用戶端提供的Content-Type
func DetectSecureImage(content []byte) (mimeType, ext string, ok bool) {
	mimeType = http.DetectContentType(content)
	ext, ok = imageExtensions[mimeType]
	return mimeType, ext, ok
}
