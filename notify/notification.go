// Package notify 負責交易通知信的派送
//
// 觸發通知的操作只會把 Notification 丟進 redis stream，不會等待寄送結果；
// Worker 以 consumer group 讀取 stream、組出信件內容並寄出，失敗的訊息會被移到死信stream。
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Kind 是通知的種類
type Kind string

const (
	KindBidPlaced         Kind = "bid_placed"
	KindOutbid            Kind = "outbid"
	KindLeadingBid        Kind = "leading_bid"
	KindAuctionWon        Kind = "auction_won"
	KindAuctionLost       Kind = "auction_lost"
	KindEndingSoon        Kind = "ending_soon"
	KindEmailVerification Kind = "email_verification"
	KindOrderPaid         Kind = "order_paid"
	KindShipmentSent      Kind = "shipment_sent"
)

// Notification 是一則要寄給使用者的通知
// 金額以字串保存，避免序列化時失去精度
type Notification struct {
	Kind         Kind      `msgpack:"kind"`
	UserID       uuid.UUID `msgpack:"user_id"`
	ArtworkID    uuid.UUID `msgpack:"artwork_id"`
	ArtworkTitle string    `msgpack:"artwork_title"`
	Amount       string    `msgpack:"amount"`
	Currency     string    `msgpack:"currency"`
	EndTime      time.Time `msgpack:"end_time"`

	OrderID        uuid.UUID `msgpack:"order_id"`
	TrackingNumber string    `msgpack:"tracking_number"`
	Token          string    `msgpack:"token"`

	CreatedAt time.Time `msgpack:"created_at"`
}
