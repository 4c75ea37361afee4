package bidding

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"

	redisAdapter "artrise/adapters/redis"
	"artrise/models/modeltest"
	"artrise/notify"
)

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

type fixture struct {
	db     *gorm.DB
	redis  *redis.Client
	mr     *miniredis.Miniredis
	engine *Engine
	rec    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rec := &recorder{}
	dispatcher := notify.NewMockDispatcher(gomock.NewController(t))
	dispatcher.EXPECT().Dispatch(gomock.Any()).Do(func(n notify.Notification) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.sent = append(rec.sent, n)
	}).AnyTimes()

	db := modeltest.NewDB(t)
	locks := redisAdapter.NewMutexFactory(client, "lock:", redisAdapter.WithAutoRenewMutexRetryDelay(10*time.Millisecond))
	engine := NewEngine(db, dispatcher,
		WithEngineLocks(locks, 5*time.Second),
		WithEngineBidStream(client, "bids", 0),
	)
	return &fixture{db: db, redis: client, mr: mr, engine: engine, rec: rec}
}
