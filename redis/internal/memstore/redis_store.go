package memstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"
)

const opTimeout = 5 * time.Second

// RedisStore persists routing-memory counters in Redis.
// It uses one hash per (agent, step type, bucket) key:
//
//	<prefix>mem:<agent>:<stepType>:<bucket> => HASH
//
// with four fields per tier:
//
//	<tier>:runs, <tier>:succ, <tier>:cost, <tier>:lat
//
// Counters only ever grow, through HINCRBY/HINCRBYFLOAT, so concurrent
// writers never lose outcomes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ routing.Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. prefix is optional but recommended
// (e.g. "stepflow:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "stepflow:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) hashKey(key routing.Key) string {
	return fmt.Sprintf("%smem:%s:%s:%s", s.prefix, key.AgentID, key.StepType, key.Bucket)
}

func (s *RedisStore) GetRecommendation(key routing.Key) (*routing.Recommendation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.hashKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	stats := make(map[api.Tier]routing.TierStats)
	for field, raw := range fields {
		tierName, counter, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		tier := api.Tier(tierName)
		ts := stats[tier]
		switch counter {
		case "runs":
			ts.RunCount, err = strconv.ParseInt(raw, 10, 64)
		case "succ":
			ts.SuccessCount, err = strconv.ParseInt(raw, 10, 64)
		case "cost":
			ts.TotalCost, err = strconv.ParseFloat(raw, 64)
		case "lat":
			ts.TotalLatencyMs, err = strconv.ParseFloat(raw, 64)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("routing memory field %q: %w", field, err)
		}
		stats[tier] = ts
	}
	return routing.BuildRecommendation(stats), nil
}

func (s *RedisStore) RecordOutcome(key routing.Key, tier api.Tier, success bool, cost, latencyMs float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	succ := 0
	if success {
		succ = 1
	}

	hk := s.hashKey(key)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, hk, string(tier)+":runs", 1)
	pipe.HIncrBy(ctx, hk, string(tier)+":succ", int64(succ))
	pipe.HIncrByFloat(ctx, hk, string(tier)+":cost", cost)
	pipe.HIncrByFloat(ctx, hk, string(tier)+":lat", latencyMs)
	_, err := pipe.Exec(ctx)
	return err
}
