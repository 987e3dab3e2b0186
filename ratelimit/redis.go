package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qorc/queryorchestrator/core"
)

// window is one sliding-window counter tracked as a Redis sorted set keyed
// by request timestamp, mirroring the minute-window sorted-set design but
// generalized to an arbitrary duration so the same code drives both the
// per-minute and per-hour caps.
type window struct {
	suffix string
	limit  int
	period time.Duration
}

// RedisStore implements Store against a shared Redis instance using two
// sorted sets per client, one per window. Every operation degrades to
// fail-open (Allowed: true) on Redis errors so an outage never blocks
// traffic; it only turns off rate limiting until Redis recovers.
type RedisStore struct {
	Client    *redis.Client
	Logger    core.Logger
	PerMinute int
	PerHour   int
	KeyPrefix string
}

// NewRedisStore builds a RedisStore with the given per-minute/per-hour caps.
func NewRedisStore(client *redis.Client, perMinute, perHour int, logger core.Logger) *RedisStore {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &RedisStore{Client: client, Logger: logger, PerMinute: perMinute, PerHour: perHour, KeyPrefix: "qorc:ratelimit"}
}

func (s *RedisStore) windows() []window {
	return []window{
		{suffix: "minute", limit: s.PerMinute, period: time.Minute},
		{suffix: "hour", limit: s.PerHour, period: time.Hour},
	}
}

func (s *RedisStore) key(clientID, suffix string) string {
	return fmt.Sprintf("%s:%s:%s", s.KeyPrefix, clientID, suffix)
}

// Allow admits clientID's request if it fits under both windows. Both
// windows are evaluated before either is written, so a request rejected by
// one window never partially consumes quota on the other.
func (s *RedisStore) Allow(ctx context.Context, clientID string) (Decision, error) {
	now := time.Now()

	counts := make(map[string]int64, 2)
	for _, w := range s.windows() {
		key := s.key(clientID, w.suffix)
		cutoffScore := fmt.Sprintf("%d", now.Add(-w.period).UnixMicro())

		if err := s.Client.ZRemRangeByScore(ctx, key, "0", cutoffScore).Err(); err != nil {
			s.Logger.Warn("ratelimit: failed to trim window, failing open", map[string]interface{}{"error": err.Error(), "window": w.suffix})
			return Decision{Allowed: true}, nil
		}
		count, err := s.Client.ZCard(ctx, key).Result()
		if err != nil {
			s.Logger.Warn("ratelimit: failed to count window, failing open", map[string]interface{}{"error": err.Error(), "window": w.suffix})
			return Decision{Allowed: true}, nil
		}
		counts[w.suffix] = count
	}

	for _, w := range s.windows() {
		if counts[w.suffix] >= int64(w.limit) {
			return Decision{
				Allowed:         false,
				RetryAfter:      w.period / time.Duration(max(w.limit, 1)),
				RemainingMinute: remaining(s.PerMinute, counts["minute"]),
				RemainingHour:   remaining(s.PerHour, counts["hour"]),
			}, nil
		}
	}

	member := fmt.Sprintf("%d", now.UnixNano())
	pipe := s.Client.Pipeline()
	for _, w := range s.windows() {
		key := s.key(clientID, w.suffix)
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixMicro()), Member: member})
		pipe.Expire(ctx, key, w.period+time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.Logger.Warn("ratelimit: failed to record request, failing open", map[string]interface{}{"error": err.Error()})
		return Decision{Allowed: true}, nil
	}

	return Decision{
		Allowed:         true,
		RemainingMinute: remaining(s.PerMinute, counts["minute"]+1),
		RemainingHour:   remaining(s.PerHour, counts["hour"]+1),
	}, nil
}

// Stats reports current usage without writing anything.
func (s *RedisStore) Stats(ctx context.Context, clientID string) (Stats, error) {
	out := Stats{LimitMinute: s.PerMinute, LimitHour: s.PerHour}
	now := time.Now()
	for _, w := range s.windows() {
		key := s.key(clientID, w.suffix)
		cutoffScore := fmt.Sprintf("%d", now.Add(-w.period).UnixMicro())
		count, err := s.Client.ZCount(ctx, key, cutoffScore, "+inf").Result()
		if err != nil {
			continue
		}
		switch w.suffix {
		case "minute":
			out.UsedMinute = int(count)
		case "hour":
			out.UsedHour = int(count)
		}
	}
	return out, nil
}

// Reset clears both windows for clientID.
func (s *RedisStore) Reset(ctx context.Context, clientID string) error {
	for _, w := range s.windows() {
		if err := s.Client.Del(ctx, s.key(clientID, w.suffix)).Err(); err != nil {
			return err
		}
	}
	return nil
}

func remaining(limit int, used int64) int {
	r := limit - int(used)
	if r < 0 {
		return 0
	}
	return r
}
