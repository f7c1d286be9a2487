package alertstore

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

func TestPushAndRecentNewestFirst(t *testing.T) {
	is, ctx, mr, s := setupTest(t)

	for i := 0; i < 3; i++ {
		is.NoErr(s.Push(ctx, "42", alert(i)))
	}

	alerts, err := s.Recent(ctx, "42", 10)
	is.NoErr(err)
	is.Equal(3, len(alerts))
	is.Equal("alert-2", alerts[0].ID)
	is.Equal("alert-0", alerts[2].ID)

	is.True(mr.TTL("alerts:42") > 23*time.Hour)

	none, err := s.Recent(ctx, "7", 10)
	is.NoErr(err)
	is.Equal(0, len(none))
}

func TestListIsCappedAt100(t *testing.T) {
	is, ctx, mr, s := setupTest(t)

	for i := 0; i < 120; i++ {
		is.NoErr(s.Push(ctx, "42", alert(i)))
	}

	members, err := mr.List("alerts:42")
	is.NoErr(err)
	is.Equal(Capacity, len(members))

	alerts, err := s.Recent(ctx, "42", 5)
	is.NoErr(err)
	is.Equal(5, len(alerts))
	is.Equal("alert-119", alerts[0].ID)
}

func TestRecentFallsBackToMemory(t *testing.T) {
	is, ctx, mr, s := setupTest(t)

	is.NoErr(s.Push(ctx, "42", alert(1)))
	mr.Close()
	is.NoErr(s.Push(ctx, "42", alert(2)))

	alerts, err := s.Recent(ctx, "42", 10)
	is.NoErr(err)
	is.Equal(2, len(alerts))
	is.Equal("alert-2", alerts[0].ID)
}

func TestMemoryOnlyStore(t *testing.T) {
	is, ctx := is.New(t), context.Background()
	s := New(nil)

	for i := 0; i < 105; i++ {
		is.NoErr(s.Push(ctx, "42", alert(i)))
	}

	alerts, err := s.Recent(ctx, "42", 0)
	is.NoErr(err)
	is.Equal(Capacity, len(alerts))
	is.Equal("alert-104", alerts[0].ID)
}

func alert(i int) types.Alert {
	return types.Alert{
		ID:        fmt.Sprintf("alert-%d", i),
		SubjectID: "42",
		Severity:  types.SeverityWarning,
		Metric:    types.HeartRate,
		Value:     105,
		Threshold: 100,
		Direction: types.DirectionHigh,
		Timestamp: time.Now(),
	}
}

func setupTest(t *testing.T) (*is.I, context.Context, *miniredis.Miniredis, Store) {
	is := is.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	return is, context.Background(), mr, New(client)
}
