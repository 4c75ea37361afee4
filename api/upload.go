package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	internalS3 "artrise/adapters/s3"
	"artrise/models"
)

const maxImageSize = 5 << 20

// Upload an image
// (POST /upload)
func (s *Server) uploadImage(c *gin.Context) {
	const op = "uploadImage"
	if s.uploader == nil {
		abortWithError(c, http.StatusServiceUnavailable, "Image upload is not configured")
		return
	}
	user := currentUser(c)
	ctx := c.Request.Context()

	// 檢查是否達到上傳限制
	if limit := s.config.S3.RateLimitPerHour; limit > 0 {
		var uploadedCount int64
		err := s.db.WithContext(ctx).Model(&models.Image{}).
			Where("uploader_id = ? AND created_at > ?", user.ID, s.now().Add(-time.Hour)).
			Count(&uploadedCount).Error
		if err != nil {
			s.respondError(c, op, fmt.Errorf("[%s] Fail to count uploaded images, err=%w", op, err))
			return
		}
		if uploadedCount >= limit {
			abortWithError(c, http.StatusTooManyRequests, "Upload limit reached, try again later")
			return
		}
	}

	// 接受 multipart 的 file 欄位或直接以 body 上傳
	var reader io.Reader = c.Request.Body
	if fileHeader, err := c.FormFile("file"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Fail to open uploaded file")
			return
		}
		defer file.Close()
		reader = file
	}

	// 限制圖片
	// 	1. 小於5MB
	// 	2. MIME類型為不包含腳本的圖片檔案
	content, err := internalS3.ReadAllLimited(reader, maxImageSize)
	var limitErr *internalS3.SizeLimitError
	if errors.As(err, &limitErr) {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Image exceeds %s", internalS3.FormatBytes(maxImageSize)))
		return
	}
	if err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to read image, err=%w", op, err))
		return
	}
	mimeType, ext, secure := internalS3.DetectSecureImage(content)
	if !secure {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid image type: %s", mimeType))
		return
	}

	// 透過S3 API儲存圖片
	url, err := s.uploader.Upload(ctx, uuid.NewString()+"."+ext, mimeType, content)
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	// 在DB紀錄圖片的上傳紀錄
	image := models.Image{UploaderID: user.ID, Url: url}
	if err := s.db.WithContext(ctx).Create(&image).Error; err != nil {
		s.respondError(c, op, fmt.Errorf("[%s] Fail to create image, err=%w", op, err))
		return
	}
	c.Header("Location", url)
	c.JSON(http.StatusCreated, gin.H{"url": url, "image": image})
}
