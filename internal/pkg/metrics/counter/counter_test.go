package counter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditGate/internal/pkg/env"
)

const isolatedCounterTestRedisDB = 11

func newCounterRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       isolatedCounterTestRedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestCollectIncrements(t *testing.T) {
	pairs := collectIncrements(map[string]string{
		"b":   "2",
		"a":   "5",
		"bad": "x",
		"z":   "0",
		"":    "4",
	})

	assert.Equal(t, []increment{{id: "a", inc: 5}, {id: "b", inc: 2}}, pairs)
}

func TestBuildIncrementSQL(t *testing.T) {
	sql, args := buildIncrementSQL("incoming_triggers", "usage_count", []increment{
		{id: "a", inc: 5},
		{id: "b", inc: 2},
	})

	assert.Equal(t,
		"UPDATE incoming_triggers SET usage_count = usage_count + CASE id WHEN ? THEN ? WHEN ? THEN ? ELSE 0 END WHERE id IN (?,?)",
		sql)
	assert.Equal(t, []interface{}{"a", int64(5), "b", int64(2), "a", "b"}, args)
}

func TestIsMissingKey(t *testing.T) {
	assert.True(t, isMissingKey(errors.New("ERR no such key")))
	assert.True(t, isMissingKey(errors.New("redis: nil")))
	assert.False(t, isMissingKey(errors.New("connection refused")))
}

func TestFlushHashToTable_AppliesAndDrains(t *testing.T) {
	rdb := newCounterRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.HIncrBy(ctx, incomingUsageKey, "a", 3).Err())
	require.NoError(t, rdb.HIncrBy(ctx, incomingUsageKey, "b", 2).Err())

	var gotArgs []interface{}
	err := flushHashToTable(ctx, rdb, func(_ context.Context, _ string, args ...interface{}) error {
		gotArgs = args
		return nil
	}, incomingUsageKey, "incoming_triggers", "usage_count")
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"a", int64(3), "b", int64(2), "a", "b"}, gotArgs)
	keys, err := rdb.Keys(ctx, incomingUsageKey+"*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFlushHashToTable_FailedUpdateKeepsCounts(t *testing.T) {
	rdb := newCounterRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.HIncrBy(ctx, incomingUsageKey, "a", 3).Err())
	require.NoError(t, rdb.HIncrBy(ctx, incomingUsageKey, "b", 2).Err())

	dbErr := errors.New("connection reset")
	err := flushHashToTable(ctx, rdb, func(ctx context.Context, _ string, _ ...interface{}) error {
		// a hit arriving while the update runs
		require.NoError(t, rdb.HIncrBy(ctx, incomingUsageKey, "a", 1).Err())
		return dbErr
	}, incomingUsageKey, "incoming_triggers", "usage_count")
	assert.ErrorIs(t, err, dbErr)

	counts, err := rdb.HGetAll(ctx, incomingUsageKey).Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "4", "b": "2"}, counts)

	keys, err := rdb.Keys(ctx, incomingUsageKey+":tmp:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)

	var applied []interface{}
	require.NoError(t, flushHashToTable(ctx, rdb, func(_ context.Context, _ string, args ...interface{}) error {
		applied = args
		return nil
	}, incomingUsageKey, "incoming_triggers", "usage_count"))
	assert.Equal(t, []interface{}{"a", int64(4), "b", int64(2), "a", "b"}, applied)
}

func TestFlushHashToTable_NothingPending(t *testing.T) {
	rdb := newCounterRedis(t)
	called := false
	err := flushHashToTable(context.Background(), rdb, func(context.Context, string, ...interface{}) error {
		called = true
		return nil
	}, incomingUsageKey, "incoming_triggers", "usage_count")
	require.NoError(t, err)
	assert.False(t, called)
}
