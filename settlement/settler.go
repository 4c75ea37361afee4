// Package settlement 負責結標
//
// 狀態只會由 live 轉為 sold 或 unsold。轉換時使用帶狀態條件的更新，
// 對已經結標的作品重複執行不會重新選出得標者，也不會再次通知。
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"artrise/models"
	"artrise/notify"
)

// ErrAlreadySettled 表示作品在這次結標前已被其他流程結標
var ErrAlreadySettled = errors.New("artwork already settled")

// EndingSoonWindow 是「即將結束」通知的時間範圍
const EndingSoonWindow = 24 * time.Hour

type settlerOptions struct {
	logger *slog.Logger
	now    func() time.Time
}

type SettlerOption func(*settlerOptions)

// WithSettlerLogger 設置日誌記錄器
func WithSettlerLogger(logger *slog.Logger) SettlerOption {
	return func(o *settlerOptions) {
		o.logger = logger
	}
}

// WithSettlerClock 設置取得目前時間的函數 (主要用於測試)
func WithSettlerClock(now func() time.Time) SettlerOption {
	return func(o *settlerOptions) {
		o.now = now
	}
}

type Settler struct {
	db         *gorm.DB
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewSettler(db *gorm.DB, dispatcher notify.Dispatcher, opts ...SettlerOption) *Settler {
	options := settlerOptions{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Settler{
		db:         db,
		dispatcher: dispatcher,
		logger:     options.logger.With(slog.String("caller", "Settler")),
		now:        options.now,
	}
}

// SettleExpired 結標所有已過結束時間的上架作品，返回成功結標的數量
// 單件作品失敗只會記錄錯誤，不影響其他作品
func (s *Settler) SettleExpired(ctx context.Context) (int, error) {
	const op = "Settler.SettleExpired"
	var artworks []models.Artwork
	err := s.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", models.ArtworkLive, s.now()).
		Order("end_time ASC").
		Find(&artworks).Error
	if err != nil {
		return 0, fmt.Errorf("[%s] Fail to list expired artworks, err=%w", op, err)
	}

	settled := 0
	for _, artwork := range artworks {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if err := s.Settle(ctx, artwork); err != nil {
			if errors.Is(err, ErrAlreadySettled) {
				continue
			}
			s.logger.Error("Fail to settle artwork",
				slog.String("op", op),
				slog.String("artworkId", artwork.ID.String()),
				slog.Any("error", err))
			continue
		}
		settled++
	}
	return settled, nil
}

// Settle 結標單件作品並通知所有出價者
func (s *Settler) Settle(ctx context.Context, artwork models.Artwork) error {
	const op = "Settler.Settle"
	var (
		offers   []models.Offer
		sellerID uuid.UUID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("artwork_id = ?", artwork.ID).
			Order("amount DESC").Order("created_at ASC").
			Find(&offers).Error; err != nil {
			return fmt.Errorf("[%s] Fail to list offers, err=%w", op, err)
		}

		if len(offers) == 0 {
			return transition(tx, artwork.ID, map[string]any{"status": models.ArtworkUnsold})
		}

		winner := offers[0]
		if err := transition(tx, artwork.ID, map[string]any{
			"status":    models.ArtworkSold,
			"end_price": decimal.NewNullDecimal(winner.Amount),
		}); err != nil {
			return err
		}

		if err := tx.Model(&models.Auction{}).Select("artist_id").Where("id = ?", artwork.AuctionID).Scan(&sellerID).Error; err != nil {
			return fmt.Errorf("[%s] Fail to find seller, err=%w", op, err)
		}
		order := models.Order{
			ArtworkID: artwork.ID,
			BuyerID:   winner.UserID,
			SellerID:  sellerID,
			Amount:    winner.Amount,
			Currency:  artwork.Currency,
			Status:    models.OrderPending,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("[%s] Fail to create order, err=%w", op, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(offers) > 0 {
		s.notifyResult(artwork, offers)
	}
	s.logger.Info("artwork settled",
		slog.String("artworkId", artwork.ID.String()),
		slog.Int("offers", len(offers)))
	return nil
}

// transition 只在作品仍為 live 時更新
func transition(tx *gorm.DB, artworkID uuid.UUID, values map[string]any) error {
	const op = "transition"
	result := tx.Model(&models.Artwork{}).
		Where("id = ? AND status = ?", artworkID, models.ArtworkLive).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to update artwork status, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadySettled
	}
	return nil
}

func (s *Settler) notifyResult(artwork models.Artwork, offers []models.Offer) {
	winner := offers[0]
	n := notify.Notification{
		ArtworkID:    artwork.ID,
		ArtworkTitle: artwork.Title,
		Amount:       winner.Amount.StringFixed(2),
		Currency:     artwork.Currency,
	}

	n.Kind, n.UserID = notify.KindAuctionWon, winner.UserID
	s.dispatcher.Dispatch(n)

	losers := lo.Uniq(lo.FilterMap(offers[1:], func(o models.Offer, _ int) (uuid.UUID, bool) {
		return o.UserID, o.UserID != winner.UserID
	}))
	for _, userID := range losers {
		n.Kind, n.UserID = notify.KindAuctionLost, userID
		s.dispatcher.Dispatch(n)
	}
}

// NotifyEndingSoon 通知24小時內結束且尚未通知過的作品的出價者，返回處理的作品數量
func (s *Settler) NotifyEndingSoon(ctx context.Context) (int, error) {
	const op = "Settler.NotifyEndingSoon"
	now := s.now()
	var artworks []models.Artwork
	err := s.db.WithContext(ctx).
		Where("status = ? AND ending_soon_notified = ? AND end_time > ? AND end_time <= ?",
			models.ArtworkLive, false, now, now.Add(EndingSoonWindow)).
		Find(&artworks).Error
	if err != nil {
		return 0, fmt.Errorf("[%s] Fail to list ending artworks, err=%w", op, err)
	}

	notified := 0
	for _, artwork := range artworks {
		if ctx.Err() != nil {
			return notified, ctx.Err()
		}
		if err := s.notifyEndingSoon(ctx, artwork); err != nil {
			s.logger.Error("Fail to notify ending soon",
				slog.String("op", op),
				slog.String("artworkId", artwork.ID.String()),
				slog.Any("error", err))
			continue
		}
		notified++
	}
	return notified, nil
}

func (s *Settler) notifyEndingSoon(ctx context.Context, artwork models.Artwork) error {
	const op = "Settler.notifyEndingSoon"
	db := s.db.WithContext(ctx)

	// 先標記再通知，標記失敗時不會重複寄送
	result := db.Model(&models.Artwork{}).
		Where("id = ? AND ending_soon_notified = ?", artwork.ID, false).
		Update("ending_soon_notified", true)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to flag artwork, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	var offers []models.Offer
	if err := db.Where("artwork_id = ?", artwork.ID).Find(&offers).Error; err != nil {
		return fmt.Errorf("[%s] Fail to list offers, err=%w", op, err)
	}
	for _, offer := range lo.UniqBy(offers, func(o models.Offer) uuid.UUID { return o.UserID }) {
		s.dispatcher.Dispatch(notify.Notification{
			Kind:         notify.KindEndingSoon,
			UserID:       offer.UserID,
			ArtworkID:    artwork.ID,
			ArtworkTitle: artwork.Title,
			Amount:       offer.Amount.StringFixed(2),
			Currency:     artwork.Currency,
			EndTime:      artwork.EndTime,
		})
	}
	return nil
}
