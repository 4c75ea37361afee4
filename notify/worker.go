package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	redisAdapter "artrise/adapters/redis"
	"artrise/models"
)

type workerOptions struct {
	logger      *slog.Logger
	sendTimeout time.Duration
}

type WorkerOption func(*workerOptions)

// WithWorkerLogger 設置日誌記錄器
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		o.logger = logger
	}
}

// WithWorkerSendTimeout 設置單封信件的處理時限
func WithWorkerSendTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		o.sendTimeout = d
	}
}

// Worker 從 consumer group 讀取通知，查出收件者後渲染並寄出
type Worker struct {
	consumer   redisAdapter.IGroupConsumer[Notification]
	db         *gorm.DB
	renderer   *Renderer
	mailer     Mailer
	logger     *slog.Logger
	options    workerOptions
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

func NewWorker(consumer redisAdapter.IGroupConsumer[Notification], db *gorm.DB, renderer *Renderer, mailer Mailer, opts ...WorkerOption) *Worker {
	options := workerOptions{
		logger:      slog.Default(),
		sendTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Worker{
		consumer: consumer,
		db:       db,
		renderer: renderer,
		mailer:   mailer,
		logger:   options.logger.With(slog.String("caller", "NotifyWorker")),
		options:  options,
	}
}

func (w *Worker) Start() error {
	const op = "Worker.Start"
	if err := w.consumer.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start consumer, err=%w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancelFunc = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for msg := range w.consumer.Subscribe() {
			w.process(ctx, msg)
		}
	}()
	return nil
}

func (w *Worker) process(ctx context.Context, msg *redisAdapter.Message[Notification]) {
	sendCtx, cancel := context.WithTimeout(ctx, w.options.sendTimeout)
	defer cancel()

	if err := w.Handle(sendCtx, msg.Data); err != nil {
		w.logger.Error("Fail to send notification",
			slog.String("messageId", msg.ID),
			slog.String("kind", string(msg.Data.Kind)),
			slog.Any("error", err),
		)
		if err := msg.Fail(ctx, err); err != nil {
			w.logger.Error("Fail to move notification to dead letter", slog.String("messageId", msg.ID), slog.Any("error", err))
		}
		return
	}
	if err := msg.Done(ctx); err != nil {
		w.logger.Error("Fail to ack notification", slog.String("messageId", msg.ID), slog.Any("error", err))
	}
}

// Handle 寄出一則通知，收件者已不存在時直接略過
func (w *Worker) Handle(ctx context.Context, n Notification) error {
	const op = "Worker.Handle"
	var user models.User
	err := w.db.WithContext(ctx).Where("id = ?", n.UserID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w.logger.Warn("recipient not found, skip notification",
			slog.String("userId", n.UserID.String()),
			slog.String("kind", string(n.Kind)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("[%s] Fail to find recipient, err=%w", op, err)
	}

	subject, body, err := w.renderer.Render(user.Username, n)
	if err != nil {
		return fmt.Errorf("[%s] Fail to render notification, err=%w", op, err)
	}
	if err := w.mailer.Send(ctx, Email{To: user.Email, Subject: subject, HTML: body}); err != nil {
		return fmt.Errorf("[%s] Fail to send mail, err=%w", op, err)
	}
	return nil
}

func (w *Worker) Close() {
	if w.cancelFunc == nil {
		return
	}
	// consumer 關閉後 Subscribe 的channel會被關閉，迴圈隨之結束
	if err := w.consumer.Close(); err != nil {
		w.logger.Error("Fail to close consumer", slog.Any("error", err))
	}
	w.wg.Wait()
	w.cancelFunc()
	w.cancelFunc = nil
}
