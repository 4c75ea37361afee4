//go:generate mockgen -package=notify -destination=mock.go -source=interfaces.go

package notify

import (
	"context"
)

// Dispatcher 派送通知，不回傳錯誤，也不會阻塞呼叫端
type Dispatcher interface {
	Dispatch(n Notification)
}

// Email 是渲染完成的信件
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer 寄出信件
type Mailer interface {
	Send(ctx context.Context, email Email) error
}
