package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink keeps the most recent reports in a capped list, newest first.
type RedisSink struct {
	rdb  redis.Cmdable
	key  string
	keep int64
	own  *redis.Client
}

func NewRedisSink(addr, password, key string, keep int64) *RedisSink {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	s := NewRedisSinkWith(rdb, key, keep)
	s.own = rdb
	return s
}

func NewRedisSinkWith(rdb redis.Cmdable, key string, keep int64) *RedisSink {
	return &RedisSink{rdb: rdb, key: key, keep: keep}
}

func (s *RedisSink) Publish(ctx context.Context, r *Report) error {
	const op = "RedisSink.Publish"
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, 0, s.keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Recent returns up to n stored reports, newest first.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Report, error) {
	const op = "RedisSink.Recent"
	raw, err := s.rdb.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	reports := make([]Report, 0, len(raw))
	for _, item := range raw {
		var r Report
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (s *RedisSink) Close() error {
	if s.own == nil {
		return nil
	}
	return s.own.Close()
}
