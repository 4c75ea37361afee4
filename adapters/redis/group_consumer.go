package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadLetterStream 返回stream對應的死信stream名稱
func DeadLetterStream(stream string) string {
	return stream + ":dead-letter"
}

// Message 封裝消息和ack所需資料
type Message[T any] struct {
	Data T
	ID   string

	client *redis.Client
	done   bool
	stream string
	group  string

	raw map[string]any
}

// Done 確認消息已處理完成
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	if m.done {
		return nil
	}
	err := m.client.XAck(ctx, m.stream, m.group, m.ID).Err()
	if err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.done = true
	return nil
}

// Fail 將消息連同錯誤原因移到死信stream並確認
func (m *Message[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Message.Fail"
	if m.done {
		return nil
	}

	values := make(map[string]any, len(m.raw)+1)
	for k, v := range m.raw {
		values[k] = v
	}
	values["error"] = failErr.Error()

	pipe := m.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream(m.stream),
		Values: values,
	})
	pipe.XAck(ctx, m.stream, m.group, m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter queue: %w", op, err)
	}
	m.done = true
	return nil
}

type groupConsumerOptions[T any] struct {
	logger        *slog.Logger
	parseFunc     func(map[string]any) (T, error)
	bufferSize    int
	blockTimeout  time.Duration
	claimInterval time.Duration
	claimMinIdle  time.Duration
}

type GroupConsumerOption[T any] func(*groupConsumerOptions[T])

// WithGroupConsumerLogger 設置日誌記錄器
func WithGroupConsumerLogger[T any](logger *slog.Logger) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.logger = logger
	}
}

// WithGroupConsumerParseFunc 設置消息解析函數
func WithGroupConsumerParseFunc[T any](fn func(map[string]any) (T, error)) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.parseFunc = fn
	}
}

// WithGroupConsumerBufferSize 設置下游channel的緩衝大小
func WithGroupConsumerBufferSize[T any](size int) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithGroupConsumerBlockTimeout 設置阻塞讀取超時時間
func WithGroupConsumerBlockTimeout[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupConsumerClaim 設置回收其他consumer遺留pending訊息的週期與最小閒置時間
// interval 為0時不回收
func WithGroupConsumerClaim[T any](interval, minIdle time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.claimInterval = interval
		o.claimMinIdle = minIdle
	}
}

// GroupConsumer 以 consumer group 讀取 stream，同一group內每則訊息只會交給一個consumer
type GroupConsumer[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	downStream chan *Message[T]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	logger     *slog.Logger
	options    groupConsumerOptions[T]
}

func NewGroupConsumer[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupConsumerOption[T],
) (*GroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	options := groupConsumerOptions[T]{
		logger:        slog.Default(),
		parseFunc:     DefaultParseFromMessage[T],
		bufferSize:    1,
		blockTimeout:  time.Second,
		claimInterval: time.Minute,
		claimMinIdle:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &GroupConsumer[T]{
		logger: options.logger.With(
			slog.String("caller", "GroupConsumer"),
			slog.String("stream", stream),
			slog.String("group", group),
			slog.String("consumer", consumer),
		),
		client:     client,
		stream:     stream,
		group:      group,
		consumer:   consumer,
		downStream: make(chan *Message[T], options.bufferSize),
		options:    options,
	}, nil
}

// Start 建立consumer group (若不存在) 並開始讀取
func (s *GroupConsumer[T]) Start() error {
	const op = "GroupConsumer.Start"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.cancelFunc != nil {
		return nil
	}

	err := s.client.XGroupCreateMkStream(context.Background(), s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("[%s] Fail to create consumer group, err=%w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.running = true
	s.logger.Info("starting group consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("group consumer goroutine stopped")
		defer close(s.downStream)

		var lastClaim time.Time
		for ctx.Err() == nil {
			var (
				messages []redis.XMessage
				err      error
			)
			if s.options.claimInterval > 0 && time.Since(lastClaim) >= s.options.claimInterval {
				lastClaim = time.Now()
				messages, err = s.claimStale(ctx)
				if err != nil && ctx.Err() == nil {
					s.logger.Warn("claim stale messages error", slog.Any("error", err))
				}
			}
			if len(messages) == 0 {
				messages, err = s.readNew(ctx)
			}
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				// 其他的錯誤一般是server跟redis之間的通訊異常，等待後重試即可
				s.logger.Error("fetch message error", slog.Any("error", err))
				select {
				case <-ctx.Done():
				case <-time.After(s.options.blockTimeout):
				}
				continue
			}

			for _, message := range messages {
				if err := s.dispatch(ctx, message); err != nil {
					// 未送出的訊息會以pending的形式留在stream中，之後由claim回收
					return
				}
			}
		}
	}()

	return nil
}

func (s *GroupConsumer[T]) dispatch(ctx context.Context, message redis.XMessage) error {
	data, err := s.options.parseFunc(message.Values)
	if err != nil {
		// 解析失敗不會因為重試就成功，直接移到死信stream
		s.logger.Error("failed to parse message",
			slog.String("messageId", message.ID),
			slog.Any("error", err),
		)
		msg := s.newMessage(message, data)
		if dlErr := msg.Fail(ctx, err); dlErr != nil {
			s.logger.Error("error moving message to dead letter",
				slog.String("messageId", message.ID),
				slog.Any("error", dlErr),
			)
		}
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.downStream <- s.newMessage(message, data):
		return nil
	}
}

func (s *GroupConsumer[T]) newMessage(message redis.XMessage, data T) *Message[T] {
	return &Message[T]{
		Data:   data,
		ID:     message.ID,
		stream: s.stream,
		group:  s.group,
		client: s.client,
		raw:    message.Values,
	}
}

func (s *GroupConsumer[T]) readNew(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    int64(s.options.bufferSize),
		Block:    s.options.blockTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, redis.Nil
	}
	return streams[0].Messages, nil
}

// claimStale 接手閒置過久的pending訊息，例如處理途中當機的consumer留下的訊息
func (s *GroupConsumer[T]) claimStale(ctx context.Context) ([]redis.XMessage, error) {
	messages, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.options.claimMinIdle,
		Start:    "0-0",
		Count:    int64(s.options.bufferSize),
	}).Result()
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Subscribe 訂閱Stream，返回Message通道
func (s *GroupConsumer[T]) Subscribe() <-chan *Message[T] {
	return s.downStream
}

func (s *GroupConsumer[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.logger.Info("closing group consumer")
	s.running = false
	s.cancelFunc()

	s.wg.Wait()
	s.logger.Info("group consumer closed gracefully")
	return nil
}
