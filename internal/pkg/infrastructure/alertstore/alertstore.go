package alertstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-redis/redis/v8"
)

const (
	// Capacity is the number of recent alerts kept per subject.
	Capacity = 100
	// Expiry is how long an inactive list is kept.
	Expiry = 24 * time.Hour
)

type Store interface {
	Push(ctx context.Context, subject string, alert types.Alert) error
	// Recent returns at most limit alerts, newest first.
	Recent(ctx context.Context, subject string, limit int) ([]types.Alert, error)
}

func key(subject string) string {
	return fmt.Sprintf("alerts:%s", subject)
}

// New returns a store backed by redis that falls back to process memory while
// redis is unavailable. A nil client gives a memory only store.
func New(client *redis.Client) Store {
	return &store{
		client: client,
		memory: newMemoryStore(),
	}
}

type store struct {
	client *redis.Client
	memory *memoryStore
}

func (s *store) Push(ctx context.Context, subject string, alert types.Alert) error {
	// memory never fails
	_ = s.memory.Push(ctx, subject, alert)

	if s.client == nil {
		return nil
	}

	b, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	k := key(subject)

	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, k, string(b))
		p.LTrim(ctx, k, 0, Capacity-1)
		p.Expire(ctx, k, Expiry)
		return nil
	})

	if err != nil {
		log := logging.GetFromContext(ctx)
		log.Warn().Err(err).Str("subject_id", subject).Msg("redis unavailable, alert kept in memory only")
	}

	return nil
}

func (s *store) Recent(ctx context.Context, subject string, limit int) ([]types.Alert, error) {
	if limit <= 0 || limit > Capacity {
		limit = Capacity
	}

	if s.client == nil {
		return s.memory.Recent(ctx, subject, limit)
	}

	values, err := s.client.LRange(ctx, key(subject), 0, int64(limit-1)).Result()
	if err != nil {
		log := logging.GetFromContext(ctx)
		log.Warn().Err(err).Str("subject_id", subject).Msg("redis unavailable, reading alerts from memory")
		return s.memory.Recent(ctx, subject, limit)
	}

	alerts := make([]types.Alert, 0, len(values))
	for _, v := range values {
		var a types.Alert
		if err := json.Unmarshal([]byte(v), &a); err == nil {
			alerts = append(alerts, a)
		}
	}

	return alerts, nil
}

type memoryStore struct {
	mu     sync.RWMutex
	alerts map[string][]types.Alert
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		alerts: map[string][]types.Alert{},
	}
}

func (m *memoryStore) Push(_ context.Context, subject string, alert types.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]types.Alert{alert}, m.alerts[subject]...)
	if len(list) > Capacity {
		list = list[:Capacity]
	}
	m.alerts[subject] = list

	return nil
}

func (m *memoryStore) Recent(_ context.Context, subject string, limit int) ([]types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.alerts[subject]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	result := make([]types.Alert, len(list))
	copy(result, list)

	return result, nil
}
