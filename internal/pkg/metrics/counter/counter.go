package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CreditGate/internal/pkg/cache"
	"github.com/ManuelReschke/CreditGate/internal/pkg/database"
)

const (
	incomingUsageKey = "trigger:counters:incoming_usage"
)

// AddIncomingUsage increments the pending hit counter for an incoming trigger in Redis
func AddIncomingUsage(ctx context.Context, triggerID string) error {
	return cache.GetClient().HIncrBy(ctx, incomingUsageKey, triggerID, 1).Err()
}

// FlushAll flushes pending trigger counters to the database
func FlushAll(ctx context.Context) error {
	return flushHashToTable(ctx, cache.GetClient(), execSQL, incomingUsageKey, "incoming_triggers", "usage_count")
}

type increment struct {
	id  string
	inc int64
}

type execFunc func(ctx context.Context, sql string, args ...interface{}) error

func execSQL(ctx context.Context, sql string, args ...interface{}) error {
	return database.GetDB().WithContext(ctx).Exec(sql, args...).Error
}

// restoreScript adds the drained counts back onto the live hash and drops the
// temporary key.
var restoreScript = redis.NewScript(`
local data = redis.call('HGETALL', KEYS[1])
for i = 1, #data, 2 do
  redis.call('HINCRBY', KEYS[2], data[i], data[i + 1])
end
redis.call('DEL', KEYS[1])
return #data / 2
`)

// flushHashToTable drains a Redis hash atomically and applies batched increments to table.
// Uses RENAME to a temporary key for atomic drain without losing in-flight increments.
// The drained counts go back onto the live hash when the update fails.
func flushHashToTable(ctx context.Context, rdb *redis.Client, exec execFunc, redisKey, table, column string) error {
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Rename(ctx, redisKey, tmpKey).Err(); err != nil {
		if isMissingKey(err) {
			return nil
		}
		return err
	}

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return restore(ctx, rdb, tmpKey, redisKey, err)
	}

	pairs := collectIncrements(data)
	if len(pairs) == 0 {
		return rdb.Del(ctx, tmpKey).Err()
	}

	sql, args := buildIncrementSQL(table, column, pairs)
	if err := exec(ctx, sql, args...); err != nil {
		return restore(ctx, rdb, tmpKey, redisKey, err)
	}
	return rdb.Del(ctx, tmpKey).Err()
}

func restore(ctx context.Context, rdb *redis.Client, tmpKey, redisKey string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if err := restoreScript.Run(ctx, rdb, []string{tmpKey, redisKey}).Err(); err != nil {
		return fmt.Errorf("%w (restoring pending counts failed: %v)", cause, err)
	}
	return cause
}

func collectIncrements(data map[string]string) []increment {
	pairs := make([]increment, 0, len(data))
	for k, v := range data {
		if k == "" {
			continue
		}
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, increment{id: k, inc: inc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	return pairs
}

// buildIncrementSQL composes
// UPDATE <table> SET <column> = <column> + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
func buildIncrementSQL(table, column string, pairs []increment) (string, []interface{}) {
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE id")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" ELSE 0 END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")
	return builder.String(), args
}

func isMissingKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such key") || msg == "redis: nil"
}
