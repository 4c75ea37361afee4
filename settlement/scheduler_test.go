package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisAdapter "artrise/adapters/redis"
)

func newScheduler(t *testing.T) (*Scheduler, *redisAdapter.MutexFactory) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	settler, _, _ := newSettler(t)
	locks := redisAdapter.NewMutexFactory(client, "lock:")
	scheduler, err := NewScheduler(settler, locks, DefaultSchedulerConfig, nil)
	require.NoError(t, err)
	return scheduler, locks
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Run("取得鎖後執行", func(t *testing.T) {
		scheduler, _ := newScheduler(t)
		calls := 0
		ran, err := scheduler.RunOnce(context.Background(), "settle", func(ctx context.Context) (int, error) {
			calls++
			return 3, nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
		assert.Equal(t, 1, calls)
	})

	t.Run("其他實例持有鎖時略過", func(t *testing.T) {
		scheduler, locks := newScheduler(t)
		holder := locks.NewMutex("job:settle")
		_, err := holder.TryLock(context.Background())
		require.NoError(t, err)
		defer holder.Unlock()

		ran, err := scheduler.RunOnce(context.Background(), "settle", func(ctx context.Context) (int, error) {
			t.Fatal("should not run")
			return 0, nil
		})
		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("工作失敗時返回錯誤並釋放鎖", func(t *testing.T) {
		scheduler, locks := newScheduler(t)
		ran, err := scheduler.RunOnce(context.Background(), "settle", func(ctx context.Context) (int, error) {
			return 0, errors.New("db down")
		})
		assert.True(t, ran)
		assert.ErrorContains(t, err, "db down")

		_, err = locks.NewMutex("job:settle").TryLock(context.Background())
		assert.NoError(t, err)
	})

	t.Run("工作收到有時限的context", func(t *testing.T) {
		scheduler, _ := newScheduler(t)
		_, err := scheduler.RunOnce(context.Background(), "ending-soon", func(ctx context.Context) (int, error) {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(DefaultSchedulerConfig.RunTimeout), deadline, time.Second)
			return 0, nil
		})
		require.NoError(t, err)
	})
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	settler, _, _ := newSettler(t)
	_, err := NewScheduler(settler, nil, SchedulerConfig{SettleSpec: "not a spec", EndingSoonSpec: "@every 1h"}, nil)
	assert.ErrorContains(t, err, "Fail to schedule job")
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler, _ := newScheduler(t)
	scheduler.Start()
	scheduler.Stop()
}
