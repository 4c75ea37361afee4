package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsumer(t *testing.T) {
	_, err := NewConsumer[testMessage](nil, "test-stream")
	assert.ErrorContains(t, err, "redis client cannot be nil")

	client := redis.NewClient(&redis.Options{})
	defer client.Close()
	_, err = NewConsumer[testMessage](client, "")
	assert.ErrorContains(t, err, "stream cannot be empty")
}

func TestConsumer_Subscribe(t *testing.T) {
	client, _ := setupTest(t)
	ctx := context.Background()

	for _, msg := range []testMessage{{ID: "1", Data: "a"}, {ID: "2", Data: "b"}} {
		values, err := DefaultParseToMessage(msg)
		require.NoError(t, err)
		require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "test-stream", Values: values}).Err())
	}
	// 無法解析的訊息會被略過
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "test-stream", Values: map[string]any{"bad": "x"}}).Err())

	consumer, err := NewConsumer(client, "test-stream",
		WithConsumerStartID[testMessage]("0"),
		WithConsumerBlockTimeout[testMessage](100*time.Millisecond),
	)
	require.NoError(t, err)
	consumer.Start()

	assert.Equal(t, "1", receive(t, consumer.Subscribe()).ID)
	assert.Equal(t, "2", receive(t, consumer.Subscribe()).ID)

	values, err := DefaultParseToMessage(testMessage{ID: "3"})
	require.NoError(t, err)
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "test-stream", Values: values}).Err())
	assert.Equal(t, "3", receive(t, consumer.Subscribe()).ID)

	consumer.Close()
	_, ok := <-consumer.Subscribe()
	assert.False(t, ok, "關閉後下游channel應該被關閉")
}
