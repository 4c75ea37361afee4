package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockTaken 表示鎖目前由其他持有者佔用
	ErrLockTaken = errors.New("lock is held by another owner")
	// ErrLockWaitTimeout 表示在等待時限內沒有取得鎖
	ErrLockWaitTimeout = errors.New("timed out waiting for lock")
)

type AutoRenewMutex struct {
	*redsync.Mutex
	cancel   context.CancelFunc
	renewing bool
	mu       sync.Mutex
	wg       sync.WaitGroup
	options  autoRenewMutexOptions
}

type autoRenewMutexOptions struct {
	renewInterval time.Duration
	retryDelay    time.Duration
	expiry        time.Duration
	skipLockError bool
}

type AutoRenewMutexOption func(*autoRenewMutexOptions)

// WithAutoRenewMutexRenewInterval 設置自動續期間隔
func WithAutoRenewMutexRenewInterval(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.renewInterval = d
	}
}

// WithAutoRenewMutexRetryDelay 設置重試延遲
func WithAutoRenewMutexRetryDelay(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.retryDelay = d
	}
}

// WithAutoRenewMutexExpiry 設置鎖過期時間
func WithAutoRenewMutexExpiry(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.expiry = d
	}
}

// WithAutoRenewMutexSkipLockError 設置是否忽略所有鎖定錯誤
func WithAutoRenewMutexSkipLockError(skip bool) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.skipLockError = skip
	}
}

func buildMutexOptions(opts []AutoRenewMutexOption) autoRenewMutexOptions {
	options := autoRenewMutexOptions{
		expiry:     8 * time.Second,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.expiry <= 0 {
		options.expiry = 8 * time.Second
	}
	// 如果未設置續期間隔，使用過期時間的1/3
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}
	return options
}

func newAutoRenewMutex(rs *redsync.Redsync, key string, options autoRenewMutexOptions) *AutoRenewMutex {
	mutex := rs.NewMutex(
		key,
		redsync.WithExpiry(options.expiry),
		redsync.WithTries(1),
		redsync.WithRetryDelay(options.retryDelay),
	)
	return &AutoRenewMutex{
		Mutex:   mutex,
		options: options,
	}
}

// NewAutoRenewMutex 創建一個帶自動續期功能的互斥鎖
func NewAutoRenewMutex(client *redis.Client, key string, opts ...AutoRenewMutexOption) IAutoRenewMutex {
	rs := redsync.New(goredis.NewPool(client))
	return newAutoRenewMutex(rs, key, buildMutexOptions(opts))
}

// Lock 獲取鎖並啟動自動續期，支持通過context取消
// 返回的context會在鎖釋放或續期失敗時被取消
func (m *AutoRenewMutex) Lock(ctx context.Context) (context.Context, error) {
	return m.acquire(ctx, nil)
}

// LockWithWait 最多等待 wait 取得鎖
// wait 只限制等待的時間，取得後的續期跟隨 ctx，直到 Unlock 或 ctx 結束
func (m *AutoRenewMutex) LockWithWait(ctx context.Context, wait time.Duration) (context.Context, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	return m.acquire(ctx, deadline.C)
}

func (m *AutoRenewMutex) acquire(ctx context.Context, deadline <-chan time.Time) (context.Context, error) {
	timer := time.NewTimer(1)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, ErrLockWaitTimeout
		case <-timer.C:
			lockCtx, err := m.TryLock(ctx)
			if err == nil {
				return lockCtx, nil
			}
			// 只有在鎖被佔用或設置了忽略錯誤(skipLockError)時才重試
			if !m.options.skipLockError && !errors.Is(err, ErrLockTaken) {
				return nil, err
			}
			timer.Reset(m.options.retryDelay)
		}
	}
}

// TryLock 只嘗試一次，鎖被佔用時返回 ErrLockTaken
func (m *AutoRenewMutex) TryLock(ctx context.Context) (context.Context, error) {
	err := m.Mutex.TryLockContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", ctx.Err())
		}
		var commErr *redsync.RedisError
		if errors.As(err, &commErr) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		return nil, ErrLockTaken
	}

	lockCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	m.startAutoRenew(lockCtx)
	return lockCtx, nil
}

// Unlock 停止自動續期並釋放鎖
func (m *AutoRenewMutex) Unlock() (bool, error) {
	m.stopAutoRenew()
	m.wg.Wait()
	return m.Mutex.Unlock()
}

// Valid 檢查鎖是否仍然有效，通過比較當前時間和過期時間判斷
func (m *AutoRenewMutex) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Now().Before(m.Mutex.Until()) && m.renewing
}

func (m *AutoRenewMutex) startAutoRenew(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renewing {
		return
	}

	m.renewing = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.options.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				success, err := m.Mutex.ExtendContext(ctx)
				if err != nil || !success {
					m.stopAutoRenew()
					return
				}
			}
		}
	}()
}

func (m *AutoRenewMutex) stopAutoRenew() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.renewing {
		return
	}

	m.renewing = false
	if m.cancel != nil {
		m.cancel()
	}
}

// MutexFactory 共用同一個redsync實例，依key建立鎖
type MutexFactory struct {
	rs      *redsync.Redsync
	prefix  string
	options autoRenewMutexOptions
}

// NewMutexFactory 建立鎖工廠，所有key都會加上prefix
func NewMutexFactory(client *redis.Client, prefix string, opts ...AutoRenewMutexOption) *MutexFactory {
	return &MutexFactory{
		rs:      redsync.New(goredis.NewPool(client)),
		prefix:  prefix,
		options: buildMutexOptions(opts),
	}
}

func (f *MutexFactory) NewMutex(key string) IAutoRenewMutex {
	return newAutoRenewMutex(f.rs, f.prefix+key, f.options)
}
