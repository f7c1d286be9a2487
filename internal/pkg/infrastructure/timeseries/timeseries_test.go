package timeseries

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/go-redis/redis/v8"
	"github.com/matryer/is"
)

func TestMemoryStoreRangeIsOrderedAndScoped(t *testing.T) {
	is, ctx := is.New(t), context.Background()
	s := NewMemoryStore()
	now := time.Now()

	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 72, Timestamp: now.Add(-1 * time.Minute), DeviceID: "d"}))
	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 70, Timestamp: now.Add(-2 * time.Minute), DeviceID: "d"}))
	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 80, Timestamp: now.Add(-25 * time.Hour), DeviceID: "d"}))
	is.NoErr(s.Append(ctx, "42", types.SpO2, types.Entry{Value: 97, Timestamp: now, DeviceID: "d"}))
	is.NoErr(s.Append(ctx, "7", types.HeartRate, types.Entry{Value: 99, Timestamp: now, DeviceID: "x"}))

	entries, err := s.QueryRange(ctx, "42", types.HeartRate, now.Add(-48*time.Hour))
	is.NoErr(err)
	is.Equal(2, len(entries)) // the 25h old entry is outside the retention window
	is.Equal(70.0, entries[0].Value)
	is.Equal(72.0, entries[1].Value)

	latest, ok, err := s.QueryLatest(ctx, "42", types.HeartRate)
	is.NoErr(err)
	is.True(ok)
	is.Equal(72.0, latest.Value)

	_, ok, _ = s.QueryLatest(ctx, "42", types.Temperature)
	is.True(!ok)
}

func TestMemoryStoreIsBounded(t *testing.T) {
	is, ctx := is.New(t), context.Background()
	s := NewMemoryStore()
	now := time.Now().Add(-time.Hour)

	for i := 0; i < 150; i++ {
		is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: float64(i), Timestamp: now.Add(time.Duration(i) * time.Second)}))
	}

	entries, err := s.QueryRange(ctx, "42", types.HeartRate, now.Add(-time.Hour))
	is.NoErr(err)
	is.Equal(MemoryCapacity, len(entries))
	is.Equal(50.0, entries[0].Value)
	is.Equal(149.0, entries[len(entries)-1].Value)
}

func TestMemoryStoreEvict(t *testing.T) {
	is, ctx := is.New(t), context.Background()
	s := NewMemoryStore()
	now := time.Now()

	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 1, Timestamp: now.Add(-3 * time.Hour)}))
	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 2, Timestamp: now.Add(-1 * time.Hour)}))
	is.NoErr(s.Append(ctx, "42", types.SpO2, types.Entry{Value: 3, Timestamp: now.Add(-3 * time.Hour)}))

	is.NoErr(s.Evict(ctx, now.Add(-2*time.Hour)))

	entries, _ := s.QueryRange(ctx, "42", types.HeartRate, now.Add(-24*time.Hour))
	is.Equal(1, len(entries))
	is.Equal(2.0, entries[0].Value)

	_, ok, _ := s.QueryLatest(ctx, "42", types.SpO2)
	is.True(!ok)
}

func TestRedisStore(t *testing.T) {
	is, ctx, mr, s := setupRedisStore(t)
	now := time.Now()

	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 72, Timestamp: now.Add(-1 * time.Minute), DeviceID: "pulse_001"}))
	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 70, Timestamp: now.Add(-2 * time.Minute), DeviceID: "pulse_001"}))
	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 65, Timestamp: now.Add(-30 * time.Hour), DeviceID: "pulse_001"}))
	is.NoErr(s.Append(ctx, "7", types.HeartRate, types.Entry{Value: 99, Timestamp: now, DeviceID: "other"}))

	is.True(mr.Exists("vitals:42:heart_rate"))
	is.True(mr.TTL("vitals:42:heart_rate") > 0)

	entries, err := s.QueryRange(ctx, "42", types.HeartRate, now.Add(-48*time.Hour))
	is.NoErr(err)
	is.Equal(2, len(entries))
	is.Equal(70.0, entries[0].Value)
	is.Equal("pulse_001", entries[1].DeviceID)

	latest, ok, err := s.QueryLatest(ctx, "42", types.HeartRate)
	is.NoErr(err)
	is.True(ok)
	is.Equal(72.0, latest.Value)

	_, ok, err = s.QueryLatest(ctx, "42", types.SpO2)
	is.NoErr(err)
	is.True(!ok)
}

func TestRedisStoreEvict(t *testing.T) {
	is, ctx, mr, s := setupRedisStore(t)
	now := time.Now()

	for i := 0; i < 5; i++ {
		subject := fmt.Sprintf("%d", i)
		is.NoErr(s.Append(ctx, subject, types.HeartRate, types.Entry{Value: 1, Timestamp: now.Add(-30 * time.Hour)}))
		is.NoErr(s.Append(ctx, subject, types.HeartRate, types.Entry{Value: 2, Timestamp: now.Add(-1 * time.Hour)}))
	}

	is.NoErr(s.Evict(ctx, now.Add(-Retention)))

	for i := 0; i < 5; i++ {
		members, err := mr.ZMembers(fmt.Sprintf("vitals:%d:heart_rate", i))
		is.NoErr(err)
		is.Equal(1, len(members))
	}
}

func TestTieredStoreFallsBackWhenPrimaryIsDown(t *testing.T) {
	is, ctx, mr, primary := setupRedisStore(t)
	s := NewTieredStore(primary, NewMemoryStore())
	now := time.Now()

	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 72, Timestamp: now.Add(-time.Minute)}))

	mr.Close()

	// ingestion must not fail because the primary is gone
	is.NoErr(s.Append(ctx, "42", types.HeartRate, types.Entry{Value: 75, Timestamp: now}))

	entries, err := s.QueryRange(ctx, "42", types.HeartRate, now.Add(-time.Hour))
	is.NoErr(err)
	is.Equal(2, len(entries))

	latest, ok, err := s.QueryLatest(ctx, "42", types.HeartRate)
	is.NoErr(err)
	is.True(ok)
	is.Equal(75.0, latest.Value)
}

func TestTieredStoreWithoutPrimary(t *testing.T) {
	is, ctx := is.New(t), context.Background()
	s := NewTieredStore(nil, NewMemoryStore())

	is.NoErr(s.Append(ctx, "42", types.SpO2, types.Entry{Value: 97, Timestamp: time.Now()}))

	latest, ok, err := s.QueryLatest(ctx, "42", types.SpO2)
	is.NoErr(err)
	is.True(ok)
	is.Equal(97.0, latest.Value)
	is.NoErr(s.Evict(ctx, time.Now().Add(-Retention)))
}

func setupRedisStore(t *testing.T) (*is.I, context.Context, *miniredis.Miniredis, Store) {
	is := is.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { client.Close() })

	return is, context.Background(), mr, NewRedisStore(client)
}
