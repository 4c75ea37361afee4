package sse

// ISource 是訊息的上游，通常是 redis stream 的 Consumer
type ISource[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IChannel 定義了 SSE 頻道的介面
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者，返回因緩衝已滿而被略過的訂閱者數量
	Broadcast(message T) int
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// IConnectionManager 定義了 SSE 連線管理員的介面
type IConnectionManager[T any] interface {
	// Start 啟動上游並開始把訊息分派到各頻道
	Start()
	// Close 停止上游並關閉所有訂閱
	Close()
	// Subscribe 訂閱指定頻道
	Subscribe(channelName string) (<-chan T, error)
	// Publish 將資料推送給本實例上指定頻道的訂閱者
	Publish(channelName string, data T) error
	// Unsubscribe 取消訂閱指定頻道
	Unsubscribe(channelName string, ch <-chan T)
}
