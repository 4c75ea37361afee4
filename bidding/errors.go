package bidding

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrArtworkNotFound = errors.New("artwork not found")
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionEnded    = errors.New("auction has ended")
	ErrBidTooLow       = errors.New("bid amount is below the minimum")
	ErrNotAboveOwnBid  = errors.New("bid must be higher than your previous bid")
	ErrInvalidAmount   = errors.New("bid amount must be greater than zero")
	ErrOwnArtwork      = errors.New("artists cannot bid on their own artwork")
)

// RejectionError 是出價被拒絕的原因，附帶讓用戶端重新出價所需的資訊
type RejectionError struct {
	Err            error
	MinBid         decimal.Decimal
	CurrentHighest decimal.Decimal
	Increment      decimal.Decimal
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s, minimum bid is %s", e.Err, e.MinBid.StringFixed(2))
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}
