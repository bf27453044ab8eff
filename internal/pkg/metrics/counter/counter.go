package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const webhookOutcomesKey = "webhook:counters:outcomes"

// OutcomeCounter keeps per-outcome webhook delivery counts in a Redis hash.
type OutcomeCounter struct {
	rdb redis.Cmdable
	key string
}

// NewOutcomeCounter creates a counter on the given client.
func NewOutcomeCounter(rdb redis.Cmdable) *OutcomeCounter {
	return &OutcomeCounter{rdb: rdb, key: webhookOutcomesKey}
}

// Record increments the count for outcome.
func (c *OutcomeCounter) Record(ctx context.Context, outcome string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return nil
	}
	return c.rdb.HIncrBy(ctx, c.key, outcome, 1).Err()
}

// Snapshot returns the current counts without resetting them.
func (c *OutcomeCounter) Snapshot(ctx context.Context) (map[string]int64, error) {
	if c == nil || c.rdb == nil {
		return map[string]int64{}, nil
	}
	data, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

// Drain returns the current counts and resets them. The hash is renamed to a
// temporary key first so increments that race the drain are not lost.
func (c *OutcomeCounter) Drain(ctx context.Context) (map[string]int64, error) {
	if c == nil || c.rdb == nil {
		return map[string]int64{}, nil
	}

	tmpKey := fmt.Sprintf("%s:tmp:%d", c.key, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, c.key, tmpKey).Err(); err != nil {
		if errors.Is(err, redis.Nil) || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	defer c.rdb.Del(ctx, tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

func parseCounts(data map[string]string) map[string]int64 {
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out
}
