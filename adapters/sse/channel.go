package sse

import "sync"

// Channel 是單一作品的本地訂閱者集合
// 每個訂閱者有自己的緩衝，廣播不會因為某個連線讀得慢而阻塞
type Channel[T any] struct {
	mu     sync.RWMutex
	buffer int
	subs   map[<-chan T]chan T
}

func NewChannel[T any](buffer int) *Channel[T] {
	return &Channel[T]{buffer: buffer, subs: map[<-chan T]chan T{}}
}

func (c *Channel[T]) Subscribe() <-chan T {
	sub := make(chan T, c.buffer)
	c.mu.Lock()
	c.subs[sub] = sub
	c.mu.Unlock()
	return sub
}

// Unsubscribe 移除並關閉訂閱，重複呼叫不會有作用
func (c *Channel[T]) Unsubscribe(sub <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.subs[sub]; ok {
		delete(c.subs, sub)
		close(w)
	}
}

func (c *Channel[T]) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub, w := range c.subs {
		delete(c.subs, sub)
		close(w)
	}
}

// Broadcast 送出訊息並返回因緩衝已滿而略過的訂閱者數量
func (c *Channel[T]) Broadcast(msg T) (skipped int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.subs {
		select {
		case w <- msg:
		default:
			skipped++
		}
	}
	return skipped
}

func (c *Channel[T]) IsIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs) == 0
}
