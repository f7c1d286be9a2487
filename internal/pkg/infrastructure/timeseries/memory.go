package timeseries

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
)

// MemoryCapacity is the number of entries kept per subject and metric.
const MemoryCapacity = 100

type memoryStore struct {
	mu       sync.RWMutex
	capacity int
	series   map[string][]types.Entry
	now      func() time.Time
}

func NewMemoryStore() Store {
	return newMemoryStore(MemoryCapacity)
}

func newMemoryStore(capacity int) *memoryStore {
	return &memoryStore{
		capacity: capacity,
		series:   map[string][]types.Entry{},
		now:      time.Now,
	}
}

func (s *memoryStore) Append(_ context.Context, subject string, metric types.Metric, entry types.Entry) error {
	k := key(subject, metric)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.series[k]

	// keep ascending order, entries mostly arrive in order
	i := len(entries)
	for i > 0 && entries[i-1].Timestamp.After(entry.Timestamp) {
		i--
	}
	entries = append(entries, types.Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = entry

	if len(entries) > s.capacity {
		entries = append([]types.Entry(nil), entries[len(entries)-s.capacity:]...)
	}

	s.series[k] = entries

	return nil
}

func (s *memoryStore) QueryRange(_ context.Context, subject string, metric types.Metric, since time.Time) ([]types.Entry, error) {
	since = clamp(since, s.now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.series[key(subject, metric)]
	i := sort.Search(len(entries), func(i int) bool {
		return !entries[i].Timestamp.Before(since)
	})

	result := make([]types.Entry, len(entries)-i)
	copy(result, entries[i:])

	return result, nil
}

func (s *memoryStore) QueryLatest(_ context.Context, subject string, metric types.Metric) (types.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.series[key(subject, metric)]
	if len(entries) == 0 {
		return types.Entry{}, false, nil
	}

	return entries[len(entries)-1], true, nil
}

func (s *memoryStore) Evict(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, entries := range s.series {
		i := sort.Search(len(entries), func(i int) bool {
			return !entries[i].Timestamp.Before(before)
		})

		if i == len(entries) {
			delete(s.series, k)
		} else if i > 0 {
			s.series[k] = append([]types.Entry(nil), entries[i:]...)
		}
	}

	return nil
}
