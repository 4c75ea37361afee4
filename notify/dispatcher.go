package notify

import (
	"log/slog"
	"time"

	redisAdapter "artrise/adapters/redis"
)

// StreamDispatcher 透過 redis stream producer 派送通知
type StreamDispatcher struct {
	producer redisAdapter.IProducer[Notification]
	logger   *slog.Logger
	now      func() time.Time
}

func NewStreamDispatcher(producer redisAdapter.IProducer[Notification], logger *slog.Logger) *StreamDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamDispatcher{
		producer: producer,
		logger:   logger.With(slog.String("caller", "StreamDispatcher")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *StreamDispatcher) Dispatch(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}
	if err := d.producer.Publish(n); err != nil {
		d.logger.Error("Fail to dispatch notification",
			slog.String("kind", string(n.Kind)),
			slog.String("userId", n.UserID.String()),
			slog.Any("error", err),
		)
	}
}
