package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	redisAdapter "artrise/adapters/redis"
)

// SchedulerConfig 是定時工作的設定
type SchedulerConfig struct {
	// SettleSpec 是結標工作的 cron 表達式
	SettleSpec string
	// EndingSoonSpec 是即將結束通知的 cron 表達式
	EndingSoonSpec string
	// RunTimeout 是單次執行的時限
	RunTimeout time.Duration
}

// DefaultSchedulerConfig 每5分鐘結標一次，每小時檢查一次即將結束的作品
var DefaultSchedulerConfig = SchedulerConfig{
	SettleSpec:     "@every 5m",
	EndingSoonSpec: "@every 60m",
	RunTimeout:     2 * time.Minute,
}

// cronLogger 讓 cron 使用 slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}

// Scheduler 依排程執行結標與即將結束通知
// 每次執行前會嘗試取得跨實例的鎖，其他實例正在執行時略過這一輪
type Scheduler struct {
	cron    *cron.Cron
	settler *Settler
	locks   redisAdapter.IMutexFactory
	config  SchedulerConfig
	logger  *slog.Logger
}

func NewScheduler(settler *Settler, locks redisAdapter.IMutexFactory, config SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	const op = "NewScheduler"
	if logger == nil {
		logger = slog.Default()
	}
	if config.SettleSpec == "" {
		config.SettleSpec = DefaultSchedulerConfig.SettleSpec
	}
	if config.EndingSoonSpec == "" {
		config.EndingSoonSpec = DefaultSchedulerConfig.EndingSoonSpec
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultSchedulerConfig.RunTimeout
	}
	logger = logger.With(slog.String("caller", "Scheduler"))
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		settler: settler,
		locks:   locks,
		config:  config,
		logger:  logger,
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) (int, error)
	}{
		{name: "settle", spec: config.SettleSpec, run: settler.SettleExpired},
		{name: "ending-soon", spec: config.EndingSoonSpec, run: settler.NotifyEndingSoon},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			return nil, fmt.Errorf("[%s] Fail to schedule job, job=%s, err=%w", op, job.name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) (int, error)) func() {
	return func() {
		if _, err := s.RunOnce(context.Background(), name, run); err != nil {
			s.logger.Error("scheduled job failed", slog.String("job", name), slog.Any("error", err))
		}
	}
}

// RunOnce 在鎖的保護下執行一次工作，沒拿到鎖時返回 (false, nil)
func (s *Scheduler) RunOnce(ctx context.Context, name string, run func(ctx context.Context) (int, error)) (bool, error) {
	const op = "Scheduler.RunOnce"
	ctx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	if s.locks != nil {
		mutex := s.locks.NewMutex("job:" + name)
		lockCtx, err := mutex.TryLock(ctx)
		if errors.Is(err, redisAdapter.ErrLockTaken) {
			s.logger.Debug("job is running on another instance, skip", slog.String("job", name))
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("[%s] Fail to acquire job lock, err=%w", op, err)
		}
		defer func() {
			if _, err := mutex.Unlock(); err != nil {
				s.logger.Warn("Fail to release job lock", slog.String("job", name), slog.Any("error", err))
			}
		}()
		// 鎖失效時中止這一輪
		ctx = lockCtx
	}

	start := time.Now()
	count, err := run(ctx)
	if err != nil {
		return true, fmt.Errorf("[%s] Fail to run job, job=%s, err=%w", op, name, err)
	}
	s.logger.Info("job finished",
		slog.String("job", name),
		slog.Int("count", count),
		slog.Duration("elapsed", time.Since(start)))
	return true, nil
}

// Start 開始排程
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止排程並等待執行中的工作完成
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
