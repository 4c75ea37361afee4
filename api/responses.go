package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"artrise/bidding"
)

var (
	errHasBids = errors.New("resource has bids")
	errSettled = errors.New("artwork already settled")
)

type errorResponse struct {
	Error string `json:"error"`
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: message})
}

// respondError 把已知的錯誤轉換為對應的狀態碼，其餘錯誤記錄後回應 500
func (s *Server) respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, bidding.ErrArtworkNotFound),
		errors.Is(err, bidding.ErrAuctionNotFound):
		abortWithError(c, http.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, gorm.ErrDuplicatedKey):
		abortWithError(c, http.StatusConflict, "resource already exists")
	default:
		s.logger.Error("Fail to handle request", slog.String("op", op), slog.Any("error", err))
		abortWithError(c, http.StatusInternalServerError, err.Error())
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, bidding.ErrArtworkNotFound):
		return "Artwork not found"
	case errors.Is(err, bidding.ErrAuctionNotFound):
		return "Auction not found"
	default:
		return "Resource not found"
	}
}

// paramID 解析路徑中的 UUID，格式錯誤時回應 400
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
