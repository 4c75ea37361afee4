package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	redisAdapter "artrise/adapters/redis"
	internalS3 "artrise/adapters/s3"
	"artrise/adapters/sse"
	"artrise/bidding"
	"artrise/models"
	"artrise/notify"
	"artrise/settlement"
)

// Dependencies 是伺服器使用的外部資源，由呼叫端負責建立與關閉
type Dependencies struct {
	DB    *gorm.DB
	Redis *redis.Client
	// Uploader 為 nil 時上傳圖片會回應 503
	Uploader internalS3.Uploader
	Mailer   notify.Mailer
	Logger   *slog.Logger
}

type Server struct {
	db          *gorm.DB
	redisClient *redis.Client
	uploader    internalS3.Uploader
	htmlChecker *bluemonday.Policy
	engine      *bidding.Engine
	dispatcher  notify.Dispatcher
	producer    *redisAdapter.Producer[notify.Notification]
	worker      *notify.Worker
	scheduler   *settlement.Scheduler
	sseManager  sse.IConnectionManager[bidding.BidEvent]
	openapi     *openapi3.T
	logger      *slog.Logger
	now         func() time.Time

	// release 關閉由 NewServer 建立的連線
	release func()

	config ServerConfig
}

// NewServer 依照設定建立資料庫、Redis、S3 與寄信連線並組出伺服器
func NewServer(ctx context.Context, config ServerConfig, logger *slog.Logger) (*Server, error) {
	const op = "NewServer"
	if logger == nil {
		logger = slog.Default()
	}

	// 初始化S3客戶端，沒有設定 bucket 時停用上傳
	var uploader internalS3.Uploader
	if config.S3.Bucket != "" {
		s3Operator, err := internalS3.NewS3Operator(ctx, config.S3.Config)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
		}
		uploader = s3Operator
	} else {
		logger.Warn("S3 bucket is not configured, image upload is disabled")
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	tablePrefix := ""
	if config.DB.Schema != "" {
		tablePrefix = config.DB.Schema + "."
	}
	db, err := gorm.Open(postgres.Open(dsn), models.NewGormConfig(tablePrefix))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to get database handle, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("[%s] Fail to connect to redis, err=%w", op, err)
	}

	// 初始化寄信，沒有設定 SMTP 時只寫入日誌
	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if config.Mail.Host != "" {
		mailer, err = notify.NewSMTPMailer(config.Mail.SMTPConfig)
		if err != nil {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("[%s] Fail to create mailer, err=%w", op, err)
		}
	} else {
		logger.Warn("SMTP is not configured, notifications are only logged")
	}

	server, err := NewServerWithDependencies(config, Dependencies{
		DB:       db,
		Redis:    redisClient,
		Uploader: uploader,
		Mailer:   mailer,
		Logger:   logger,
	})
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, err
	}
	server.release = func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Fail to close redis client", slog.Any("error", err))
		}
		if err := sqlDB.Close(); err != nil {
			logger.Error("Fail to close database", slog.Any("error", err))
		}
	}
	return server, nil
}

// NewServerWithDependencies 以既有的連線組出出價引擎、結標排程、通知與即時事件
func NewServerWithDependencies(config ServerConfig, deps Dependencies) (*Server, error) {
	const op = "NewServerWithDependencies"
	if deps.DB == nil || deps.Redis == nil {
		return nil, fmt.Errorf("[%s] %w", op, errors.New("database and redis are required"))
	}
	if len(config.Auth.PrivateKey) == 0 {
		return nil, fmt.Errorf("[%s] %w", op, errors.New("auth private key is required"))
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Mailer == nil {
		deps.Mailer = notify.NewLogMailer(logger)
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	if config.Redis.ConsumerGroup == "" {
		config.Redis.ConsumerGroup = "artrise-notify"
	}
	if config.Redis.StreamKeys.BidStream == "" {
		config.Redis.StreamKeys.BidStream = "artrise:bids"
	}
	if config.Redis.StreamKeys.NotificationStream == "" {
		config.Redis.StreamKeys.NotificationStream = "artrise:notifications"
	}

	doc, err := LoadOpenAPI(context.Background())
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}

	locks := redisAdapter.NewMutexFactory(deps.Redis, "artrise:lock:")

	// 通知只寫入stream，由 worker 寄出
	producer, err := redisAdapter.NewProducer[notify.Notification](
		deps.Redis,
		config.Redis.StreamKeys.NotificationStream,
		redisAdapter.WithProducerLogger[notify.Notification](logger),
		redisAdapter.WithProducerMaxLen[notify.Notification](config.Redis.StreamMaxLen),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create notification producer, err=%w", op, err)
	}
	dispatcher := notify.NewStreamDispatcher(producer, logger)

	engine := bidding.NewEngine(deps.DB, dispatcher,
		bidding.WithEngineLogger(logger),
		bidding.WithEngineLocks(locks, 5*time.Second),
		bidding.WithEngineBidStream(deps.Redis, config.Redis.StreamKeys.BidStream, config.Redis.StreamMaxLen),
	)

	settler := settlement.NewSettler(deps.DB, dispatcher, settlement.WithSettlerLogger(logger))
	scheduler, err := settlement.NewScheduler(settler, locks, config.Scheduler, logger)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create scheduler, err=%w", op, err)
	}

	// 初始化通知的 group consumer
	groupConsumer, err := redisAdapter.NewGroupConsumer[notify.Notification](
		deps.Redis,
		config.Redis.StreamKeys.NotificationStream,
		config.Redis.ConsumerGroup,
		config.ID,
		redisAdapter.WithGroupConsumerLogger[notify.Notification](logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create group consumer, err=%w", op, err)
	}
	renderer, err := notify.NewRenderer(config.Mail.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create notification renderer, err=%w", op, err)
	}
	worker := notify.NewWorker(groupConsumer, deps.DB, renderer, deps.Mailer, notify.WithWorkerLogger(logger))

	// 初始化SSE管理器，每個實例都讀取完整的出價stream
	consumer, err := redisAdapter.NewConsumer[bidding.BidEvent](
		deps.Redis,
		config.Redis.StreamKeys.BidStream,
		redisAdapter.WithConsumerLogger[bidding.BidEvent](logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create consumer, err=%w", op, err)
	}
	sseManager := sse.NewConnectionManager[bidding.BidEvent](
		consumer,
		func(event bidding.BidEvent) string { return event.ArtworkID.String() },
		sse.WithLogger(logger),
	)

	return &Server{
		db:          deps.DB,
		redisClient: deps.Redis,
		uploader:    deps.Uploader,
		htmlChecker: bluemonday.UGCPolicy(),
		engine:      engine,
		dispatcher:  dispatcher,
		producer:    producer,
		worker:      worker,
		scheduler:   scheduler,
		sseManager:  sseManager,
		openapi:     doc,
		logger:      logger.With(slog.String("caller", "Server")),
		now:         func() time.Time { return time.Now().UTC() },
		config:      config,
	}, nil
}

// Start 啟動背景工作：通知的 producer 與 worker、即時事件與結標排程
func (s *Server) Start() error {
	const op = "Server.Start"
	s.producer.Start()
	if err := s.worker.Start(); err != nil {
		s.producer.Close()
		return fmt.Errorf("[%s] Fail to start notification worker, err=%w", op, err)
	}
	s.sseManager.Start()
	s.scheduler.Start()
	s.logger.Info("server started", slog.String("id", s.config.ID))
	return nil
}

// Close 依序停止背景工作，producer 最後關閉以送出排程產生的通知
func (s *Server) Close() {
	s.scheduler.Stop()
	s.sseManager.Close()
	s.worker.Close()
	s.producer.Close()
	if s.release != nil {
		s.release()
	}
	s.logger.Info("server closed")
}

// StopStreaming 關閉所有即時出價連線
func (s *Server) StopStreaming() {
	s.sseManager.Close()
}

// Router 建立所有 HTTP 路由
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	router.GET("/healthz", s.healthz)
	router.GET("/openapi.json", s.openapiDocument)

	auth := router.Group("/auth")
	auth.POST("/register", s.register)
	auth.POST("/login", s.login)
	auth.POST("/logout", s.logout)
	auth.GET("/verify-email", s.verifyEmail)
	auth.GET("/me", s.requireAuth, s.me)

	users := router.Group("/users")
	users.GET("", s.requireAuth, requireRoles(models.RoleAdmin), s.listUsers)
	users.PATCH("/me", s.requireAuth, s.updateMe)
	users.GET("/:id", s.getUser)
	users.PATCH("/:id/role", s.requireAuth, requireRoles(models.RoleAdmin), s.updateUserRole)

	auctions := router.Group("/auctions")
	auctions.GET("", s.listAuctions)
	auctions.GET("/:id", s.getAuction)
	auctions.POST("", s.requireAuth, requireRoles(models.RoleSeller, models.RoleAdmin), s.createAuction)
	auctions.PATCH("/:id", s.requireAuth, s.updateAuction)
	auctions.DELETE("/:id", s.requireAuth, s.deleteAuction)
	auctions.POST("/:id/artworks", s.requireAuth, requireRoles(models.RoleSeller, models.RoleAdmin), s.createArtwork)

	artworks := router.Group("/artworks")
	artworks.GET("", s.listArtworks)
	artworks.GET("/:id", s.getArtwork)
	artworks.GET("/:id/events", s.artworkEvents)
	artworks.PATCH("/:id", s.requireAuth, s.updateArtwork)
	artworks.DELETE("/:id", s.requireAuth, s.deleteArtwork)

	offers := router.Group("/offers")
	offers.POST("", s.requireAuth, s.placeOffer)
	offers.GET("/me", s.requireAuth, s.myOffers)
	offers.GET("/artwork/:artworkId", s.artworkOffers)

	orders := router.Group("/orders", s.requireAuth)
	orders.GET("/me", s.myOrders)
	orders.GET("/selling", requireRoles(models.RoleSeller, models.RoleAdmin), s.sellingOrders)
	orders.GET("/:id", s.getOrder)
	orders.PATCH("/:id/status", requireRoles(models.RoleSeller, models.RoleAdmin), s.updateOrderStatus)

	payments := router.Group("/payments", s.requireAuth)
	payments.POST("", s.createPayment)
	payments.GET("/order/:orderId", s.orderPayments)

	shipping := router.Group("/shipping", s.requireAuth)
	shipping.GET("/verify/:artworkId", s.verifyWinner)
	shipping.POST("", s.createShipping)
	shipping.GET("/artwork/:artworkId", s.artworkShipping)
	shipping.PATCH("/:id/status", requireRoles(models.RoleSeller, models.RoleAdmin), s.updateShippingStatus)

	router.POST("/upload", s.requireAuth, s.uploadImage)
	return router
}

func (s *Server) healthz(c *gin.Context) {
	ctx := c.Request.Context()
	status := gin.H{"database": "ok", "redis": "ok"}
	healthy := true
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unavailable"
		healthy = false
	}
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		status["redis"] = "unavailable"
		healthy = false
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
