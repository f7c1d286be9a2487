package timeseries

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/go-redis/redis/v8"
)

type redisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{
		client: client,
		now:    time.Now,
	}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *redisStore) Append(ctx context.Context, subject string, metric types.Metric, entry types.Entry) error {
	member, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	k := key(subject, metric)

	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, k, &redis.Z{Score: score(entry.Timestamp), Member: string(member)})
		p.Expire(ctx, k, Retention)
		return nil
	})

	return err
}

func (s *redisStore) QueryRange(ctx context.Context, subject string, metric types.Metric, since time.Time) ([]types.Entry, error) {
	since = clamp(since, s.now())

	members, err := s.client.ZRangeByScore(ctx, key(subject, metric), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]types.Entry, 0, len(members))
	for _, m := range members {
		var e types.Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func (s *redisStore) QueryLatest(ctx context.Context, subject string, metric types.Metric) (types.Entry, bool, error) {
	members, err := s.client.ZRevRange(ctx, key(subject, metric), 0, 0).Result()
	if err != nil {
		return types.Entry{}, false, err
	}

	if len(members) == 0 {
		return types.Entry{}, false, nil
	}

	var e types.Entry
	if err := json.Unmarshal([]byte(members[0]), &e); err != nil {
		return types.Entry{}, false, err
	}

	return e, true, nil
}

func (s *redisStore) Evict(ctx context.Context, before time.Time) error {
	max := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	iter := s.client.Scan(ctx, 0, "vitals:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.ZRemRangeByScore(ctx, iter.Val(), "-inf", max).Err(); err != nil {
			return err
		}
	}

	return iter.Err()
}
