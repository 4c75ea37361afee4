// Package bidding 實作出價規則
//
// 同一件作品的出價會先取得 redis 分散式鎖，再在資料庫交易中完成讀取、驗證與寫入，
// 因此並行的出價會依序處理，不會有兩筆出價同時以為自己是最高價。
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	redisAdapter "artrise/adapters/redis"
	"artrise/models"
	"artrise/notify"
)

// Stats 是出價當下的價格資訊
type Stats struct {
	CurrentHighestBid decimal.Decimal `json:"currentHighestBid"`
	NextMinBid        decimal.Decimal `json:"nextMinBid"`
	MinIncrement      decimal.Decimal `json:"minIncrement"`
}

// ListStats 是作品所有出價的統計
type ListStats struct {
	HighestBid decimal.Decimal `json:"highestBid"`
	TotalBids  int             `json:"totalBids"`
	Bidders    int             `json:"bidders"`
}

// Result 是成功出價的結果
type Result struct {
	Offer    models.Offer
	IsNewBid bool
	Stats    Stats
}

// BidEvent 是推送給即時連線的出價事件
type BidEvent struct {
	ArtworkID uuid.UUID `msgpack:"artwork_id" json:"artworkId"`
	UserID    uuid.UUID `msgpack:"user_id" json:"userId"`
	Username  string    `msgpack:"username" json:"username"`
	Amount    string    `msgpack:"amount" json:"amount"`
	Time      time.Time `msgpack:"time" json:"time"`
}

type engineOptions struct {
	logger           *slog.Logger
	now              func() time.Time
	locks            redisAdapter.IMutexFactory
	lockTimeout      time.Duration
	redisClient      *redis.Client
	bidStream        string
	streamMaxLen     int64
	leadingKeyPrefix string
	leadingTTL       time.Duration
}

type EngineOption func(*engineOptions)

// WithEngineLogger 設置日誌記錄器
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithEngineClock 設置取得目前時間的函數 (主要用於測試)
func WithEngineClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		o.now = now
	}
}

// WithEngineLocks 設置每件作品的分散式鎖與等待鎖的時限
func WithEngineLocks(locks redisAdapter.IMutexFactory, timeout time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.locks = locks
		o.lockTimeout = timeout
	}
}

// WithEngineBidStream 設置出價事件的 stream
func WithEngineBidStream(client *redis.Client, stream string, maxLen int64) EngineOption {
	return func(o *engineOptions) {
		o.redisClient = client
		o.bidStream = stream
		o.streamMaxLen = maxLen
	}
}

// Engine 處理出價與出價查詢
type Engine struct {
	db         *gorm.DB
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	options    engineOptions
}

func NewEngine(db *gorm.DB, dispatcher notify.Dispatcher, opts ...EngineOption) *Engine {
	options := engineOptions{
		logger:           slog.Default(),
		now:              func() time.Time { return time.Now().UTC() },
		lockTimeout:      5 * time.Second,
		leadingKeyPrefix: "artrise:leading:",
		leadingTTL:       7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Engine{
		db:         db,
		dispatcher: dispatcher,
		logger:     options.logger.With(slog.String("caller", "BiddingEngine")),
		options:    options,
	}
}

type placement struct {
	result         Result
	artwork        models.Artwork
	username       string
	previousLeader uuid.UUID
}

// PlaceBid 驗證並記錄一筆出價
func (e *Engine) PlaceBid(ctx context.Context, artworkID, bidderID uuid.UUID, amount decimal.Decimal) (*Result, error) {
	const op = "Engine.PlaceBid"
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amount = amount.Round(2)

	// 只限制等待鎖的時間，持有期間的續期跟隨請求的 ctx
	// 交易使用鎖的 context，鎖遺失時寫入會被中止
	heldCtx := ctx
	if e.options.locks != nil {
		mutex := e.options.locks.NewMutex("artwork:" + artworkID.String())
		lockCtx, err := mutex.LockWithWait(ctx, e.options.lockTimeout)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to acquire artwork lock, err=%w", op, err)
		}
		heldCtx = lockCtx
		defer func() {
			if _, err := mutex.Unlock(); err != nil {
				e.logger.Warn("Fail to release artwork lock", slog.String("op", op), slog.Any("error", err))
			}
		}()
	}

	var p placement
	err := e.db.WithContext(heldCtx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = e.place(tx, artworkID, bidderID, amount)
		return err
	})
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) ||
			errors.Is(err, ErrArtworkNotFound) ||
			errors.Is(err, ErrAuctionNotFound) ||
			errors.Is(err, ErrAuctionEnded) ||
			errors.Is(err, ErrOwnArtwork) {
			return nil, err
		}
		return nil, fmt.Errorf("[%s] Fail to place bid, err=%w", op, err)
	}

	e.notifyBid(p)
	e.publishEvent(ctx, p)
	return &p.result, nil
}

func (e *Engine) place(tx *gorm.DB, artworkID, bidderID uuid.UUID, amount decimal.Decimal) (placement, error) {
	const op = "Engine.place"
	now := e.options.now()

	artwork, auction, err := loadArtwork(tx, artworkID)
	if err != nil {
		return placement{}, err
	}
	if auction.ArtistID == bidderID {
		return placement{}, ErrOwnArtwork
	}
	if !artwork.IsOpen(now) {
		return placement{}, ErrAuctionEnded
	}

	offers, err := listOffers(tx, artworkID)
	if err != nil {
		return placement{}, err
	}

	increment := auction.Increment()
	highest := decimal.Zero
	minBid := artwork.StartPrice
	var previousLeader uuid.UUID
	if len(offers) > 0 {
		highest = offers[0].Amount
		minBid = highest.Add(increment)
		previousLeader = offers[0].UserID
	}
	reject := func(err error) error {
		return &RejectionError{Err: err, MinBid: minBid, CurrentHighest: highest, Increment: increment}
	}

	offer, exists := lo.Find(offers, func(o models.Offer) bool {
		return o.UserID == bidderID
	})
	if exists && amount.LessThanOrEqual(offer.Amount) {
		return placement{}, reject(ErrNotAboveOwnBid)
	}
	if amount.LessThan(minBid) {
		return placement{}, reject(ErrBidTooLow)
	}

	if exists {
		offer.History = append(offer.History, models.BidHistoryEntry{Amount: offer.Amount, Time: now})
		offer.Amount = amount
		if err := tx.Save(&offer).Error; err != nil {
			return placement{}, fmt.Errorf("[%s] Fail to update offer, err=%w", op, err)
		}
	} else {
		offer = models.Offer{
			ArtworkID: artworkID,
			UserID:    bidderID,
			Amount:    amount,
			History:   []models.BidHistoryEntry{{Amount: amount, Time: now}},
		}
		if err := tx.Create(&offer).Error; err != nil {
			return placement{}, fmt.Errorf("[%s] Fail to create offer, err=%w", op, err)
		}
	}

	var username string
	if err := tx.Model(&models.User{}).Select("username").Where("id = ?", bidderID).Scan(&username).Error; err != nil {
		return placement{}, fmt.Errorf("[%s] Fail to find bidder, err=%w", op, err)
	}

	return placement{
		result: Result{
			Offer:    offer,
			IsNewBid: !exists,
			Stats: Stats{
				CurrentHighestBid: amount,
				NextMinBid:        amount.Add(increment),
				MinIncrement:      increment,
			},
		},
		artwork:        artwork,
		username:       username,
		previousLeader: previousLeader,
	}, nil
}

func (e *Engine) notifyBid(p placement) {
	n := notify.Notification{
		ArtworkID:    p.artwork.ID,
		ArtworkTitle: p.artwork.Title,
		Amount:       p.result.Offer.Amount.StringFixed(2),
		Currency:     p.artwork.Currency,
	}
	bidderID := p.result.Offer.UserID

	n.Kind, n.UserID = notify.KindBidPlaced, bidderID
	e.dispatcher.Dispatch(n)

	if p.previousLeader != uuid.Nil && p.previousLeader != bidderID {
		n.Kind, n.UserID = notify.KindOutbid, p.previousLeader
		e.dispatcher.Dispatch(n)
	}

	n.Kind, n.UserID = notify.KindLeadingBid, bidderID
	e.dispatcher.Dispatch(n)
}

// publishEvent 透過 Lua script 更新領先金額快取並寫入出價事件
func (e *Engine) publishEvent(ctx context.Context, p placement) {
	const op = "Engine.publishEvent"
	if e.options.redisClient == nil || e.options.bidStream == "" {
		return
	}

	offer := p.result.Offer
	payload, err := redisAdapter.EncodeData(BidEvent{
		ArtworkID: offer.ArtworkID,
		UserID:    offer.UserID,
		Username:  p.username,
		Amount:    offer.Amount.StringFixed(2),
		Time:      e.options.now(),
	})
	if err != nil {
		e.logger.Error("Fail to encode bid event", slog.String("op", op), slog.Any("error", err))
		return
	}

	_, err = LeadingBidScript.Run(ctx, e.options.redisClient,
		[]string{e.options.leadingKeyPrefix + offer.ArtworkID.String(), e.options.bidStream},
		offer.Amount.String(),
		payload,
		strconv.FormatInt(int64(e.options.leadingTTL.Seconds()), 10),
		strconv.FormatInt(e.options.streamMaxLen, 10),
	).Int()
	if err != nil {
		e.logger.Error("Fail to publish bid event", slog.String("op", op), slog.Any("error", err))
	}
}

// ListOffers 返回作品所有出價 (金額由高到低，同金額先出價者在前) 與統計
func (e *Engine) ListOffers(ctx context.Context, artworkID uuid.UUID) ([]models.Offer, ListStats, error) {
	const op = "Engine.ListOffers"
	db := e.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.Artwork{}).Where("id = ?", artworkID).Count(&count).Error; err != nil {
		return nil, ListStats{}, fmt.Errorf("[%s] Fail to find artwork, err=%w", op, err)
	}
	if count == 0 {
		return nil, ListStats{}, ErrArtworkNotFound
	}

	var offers []models.Offer
	err := db.Preload("User", selectPublicUser).
		Where("artwork_id = ?", artworkID).
		Order("amount DESC").Order("created_at ASC").
		Find(&offers).Error
	if err != nil {
		return nil, ListStats{}, fmt.Errorf("[%s] Fail to list offers, err=%w", op, err)
	}
	return offers, Summarize(offers), nil
}

// Summarize 計算已排序出價的統計
func Summarize(offers []models.Offer) ListStats {
	stats := ListStats{HighestBid: decimal.Zero}
	if len(offers) == 0 {
		return stats
	}
	stats.HighestBid = offers[0].Amount
	stats.TotalBids = lo.SumBy(offers, func(o models.Offer) int { return o.BidCount() })
	stats.Bidders = len(lo.UniqBy(offers, func(o models.Offer) uuid.UUID { return o.UserID }))
	return stats
}

// Quote 返回作品目前的領先金額與下一口最低出價
func (e *Engine) Quote(ctx context.Context, artworkID uuid.UUID) (Stats, error) {
	db := e.db.WithContext(ctx)
	artwork, auction, err := loadArtwork(db, artworkID)
	if err != nil {
		return Stats{}, err
	}
	offers, err := listOffers(db.Limit(1), artworkID)
	if err != nil {
		return Stats{}, err
	}

	increment := auction.Increment()
	stats := Stats{CurrentHighestBid: decimal.Zero, NextMinBid: artwork.StartPrice, MinIncrement: increment}
	if len(offers) > 0 {
		stats.CurrentHighestBid = offers[0].Amount
		stats.NextMinBid = offers[0].Amount.Add(increment)
	}
	return stats, nil
}

// UserOffers 返回使用者所有的出價，最近更新的在前
func (e *Engine) UserOffers(ctx context.Context, userID uuid.UUID) ([]models.Offer, error) {
	const op = "Engine.UserOffers"
	var offers []models.Offer
	err := e.db.WithContext(ctx).
		Preload("Artwork").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list offers, err=%w", op, err)
	}
	return offers, nil
}

func loadArtwork(db *gorm.DB, artworkID uuid.UUID) (models.Artwork, models.Auction, error) {
	const op = "loadArtwork"
	var artwork models.Artwork
	if err := db.Where("id = ?", artworkID).Take(&artwork).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return artwork, models.Auction{}, ErrArtworkNotFound
		}
		return artwork, models.Auction{}, fmt.Errorf("[%s] Fail to find artwork, err=%w", op, err)
	}

	var auction models.Auction
	if err := db.Where("id = ?", artwork.AuctionID).Take(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return artwork, auction, ErrAuctionNotFound
		}
		return artwork, auction, fmt.Errorf("[%s] Fail to find auction, err=%w", op, err)
	}
	return artwork, auction, nil
}

func listOffers(db *gorm.DB, artworkID uuid.UUID) ([]models.Offer, error) {
	const op = "listOffers"
	var offers []models.Offer
	err := db.Where("artwork_id = ?", artworkID).
		Order("amount DESC").Order("created_at ASC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list offers, err=%w", op, err)
	}
	return offers, nil
}

func selectPublicUser(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "avatar_url")
}
