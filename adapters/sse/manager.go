package sse

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrManagerClosed = errors.New("connection manager is closed")
)

type managerOptions struct {
	logger     *slog.Logger
	bufferSize int
}

type ConnectionManagerOption func(*managerOptions)

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) ConnectionManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithSubscriberBuffer 設置每個訂閱者的緩衝大小
func WithSubscriberBuffer(size int) ConnectionManagerOption {
	return func(o *managerOptions) {
		o.bufferSize = size
	}
}

// ConnectionManager 管理多個 SSE 頻道的訂閱與發布。
// 每個服務實例都會從上游 (redis stream) 收到完整的訊息，再依 channelOf 分派到本地頻道，
// 讓多個實例上的連線都能收到同樣的事件。
type ConnectionManager[T any] struct {
	logger    *slog.Logger
	source    ISource[T]
	channelOf func(T) string
	options   managerOptions

	mu       sync.RWMutex   // 保護 active 和 channels 的讀寫
	wg       sync.WaitGroup // 用於等待分派 goroutine 完成
	active   bool
	started  bool
	channels map[string]*Channel[T]
}

// NewConnectionManager 建立一個新的連線管理器。
// source: 訊息上游
// channelOf: 從訊息取出頻道名稱
func NewConnectionManager[T any](source ISource[T], channelOf func(T) string, opts ...ConnectionManagerOption) *ConnectionManager[T] {
	options := managerOptions{
		logger:     slog.Default(),
		bufferSize: 16,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &ConnectionManager[T]{
		logger:    options.logger.With(slog.String("caller", "ConnectionManager")),
		source:    source,
		channelOf: channelOf,
		options:   options,
		channels:  make(map[string]*Channel[T]),
		active:    true,
	}
}

// Start 啟動上游，開始處理訊息的接收與廣播。
func (cm *ConnectionManager[T]) Start() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if !cm.active || cm.started {
		return
	}
	cm.started = true
	cm.source.Start()

	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		for msg := range cm.source.Subscribe() {
			channelName := cm.channelOf(msg)
			if err := cm.Publish(channelName, msg); err != nil {
				return
			}
		}
	}()
}

// Close 停止連線管理器的運作。
func (cm *ConnectionManager[T]) Close() {
	cm.mu.Lock()
	if !cm.active {
		cm.mu.Unlock()
		return
	}
	cm.active = false
	started := cm.started
	cm.mu.Unlock()

	// 上游關閉後 Subscribe 的channel會被關閉，分派goroutine隨之結束
	if started {
		cm.source.Close()
	}
	cm.wg.Wait()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
	cm.logger.Info("connection manager closed")
}

// Subscribe 訂閱指定的頻道。
func (cm *ConnectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return nil, ErrManagerClosed
	}

	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T](cm.options.bufferSize)
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish 發布訊息到本實例上指定頻道的訂閱者。
func (cm *ConnectionManager[T]) Publish(channelName string, data T) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.active {
		return ErrManagerClosed
	}

	channel, ok := cm.channels[channelName]
	if !ok {
		return nil
	}
	if dropped := channel.Broadcast(data); dropped > 0 {
		cm.logger.Warn("slow subscribers skipped",
			slog.String("channel", channelName),
			slog.Int("dropped", dropped))
	}
	return nil
}

// Unsubscribe 取消訂閱指定的頻道。
func (cm *ConnectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}
