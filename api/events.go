package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"artrise/models"
)

// heartbeatInterval 內沒有事件就送出註解行，避免代理伺服器斷開閒置連線
const heartbeatInterval = 30 * time.Second

// Stream live bids of an artwork
// (GET /artworks/:id/events)
func (s *Server) artworkEvents(c *gin.Context) {
	const op = "artworkEvents"
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var artwork models.Artwork
	if err := s.db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&artwork).Error; err != nil {
		s.respondError(c, op, err)
		return
	}
	if !artwork.IsOpen(s.now()) {
		abortWithError(c, http.StatusGone, "Auction has ended")
		return
	}

	channelName := id.String()
	ch, err := s.sseManager.Subscribe(channelName)
	if err != nil {
		abortWithError(c, http.StatusServiceUnavailable, "Live events are unavailable")
		return
	}
	defer s.sseManager.Unsubscribe(channelName, ch)

	// SSE請求合法，開始初始化串流
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	// 拍賣結束時關閉串流
	closing := time.NewTimer(artwork.EndTime.Sub(s.now()))
	defer closing.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-closing.C:
			c.SSEvent("end", gin.H{"artworkId": id})
			w.Flush()
			return
		case event, ok := <-ch:
			// 管理器關閉
			if !ok {
				return
			}
			c.SSEvent("bid", event)
			w.Flush()
		case <-heartbeat.C:
			_, _ = w.WriteString(": ping\n\n")
			w.Flush()
		}
	}
}
