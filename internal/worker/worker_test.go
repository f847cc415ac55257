package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/guard"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/service"
)

type blockingSweeper struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingSweeper() *blockingSweeper {
	return &blockingSweeper{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (s *blockingSweeper) Sweep(ctx context.Context) (service.SweepReport, error) {
	s.calls.Add(1)
	select {
	case s.started <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return service.SweepReport{}, ctx.Err()
	}
	return service.SweepReport{Scanned: 1}, nil
}

func TestTriggerSkipsOverlappingSweep(t *testing.T) {
	sweeper := newBlockingSweeper()
	metrics := observability.NewMetrics()
	w := NewEscalationWorker(sweeper, nil, time.Hour, metrics, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		report, err := w.Trigger(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, report.Scanned)
	}()
	<-sweeper.started

	_, err := w.Trigger(context.Background())
	require.ErrorIs(t, err, ErrSweepInFlight)

	close(sweeper.release)
	wg.Wait()
	assert.Equal(t, int32(1), sweeper.calls.Load())

	_, err = w.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), sweeper.calls.Load())
	assertMetric(t, metrics, "dispatch_escalation_sweeps_skipped_total", "counter", 1)
}

func TestTriggerSkipsWhenAnotherReplicaHoldsLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	other := guard.NewRedis(client, "dispatch:lock:", time.Minute, 20*time.Millisecond)
	release, err := other.Acquire(context.Background(), SweepLockKey)
	require.NoError(t, err)

	sweeper := newBlockingSweeper()
	close(sweeper.release)
	w := NewEscalationWorker(sweeper, guard.NewRedis(client, "dispatch:lock:", time.Minute, 20*time.Millisecond), time.Hour, nil, nil)

	_, err = w.Trigger(context.Background())
	require.ErrorIs(t, err, ErrSweepInFlight)
	assert.Zero(t, sweeper.calls.Load())

	require.NoError(t, release(context.Background()))
	_, err = w.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestRunSweepsUntilCanceled(t *testing.T) {
	sweeper := newBlockingSweeper()
	close(sweeper.release)
	w := NewEscalationWorker(sweeper, nil, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	<-sweeper.started
	<-sweeper.started
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.GreaterOrEqual(t, sweeper.calls.Load(), int32(2))
}

func TestNextMidnight(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "evening",
			now:  time.Date(2024, 3, 4, 23, 59, 0, 0, la),
			want: time.Date(2024, 3, 5, 0, 0, 0, 0, la),
		},
		{
			name: "exactly midnight moves to the next day",
			now:  time.Date(2024, 3, 5, 0, 0, 0, 0, la),
			want: time.Date(2024, 3, 6, 0, 0, 0, 0, la),
		},
		{
			name: "across daylight saving change",
			now:  time.Date(2024, 3, 9, 12, 0, 0, 0, la),
			want: time.Date(2024, 3, 10, 0, 0, 0, 0, la),
		},
		{
			name: "utc input converted to local day",
			now:  time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 0, 0, 0, 0, la),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextMidnight(tt.now, la)), "got %s", NextMidnight(tt.now, la))
		})
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckStoreExportsHealth(t *testing.T) {
	metrics := observability.NewMetrics()

	require.NoError(t, CheckStore(context.Background(), pinger{}, time.Second, metrics))
	assertMetric(t, metrics, "dispatch_store_healthy", "gauge", 1)

	require.Error(t, CheckStore(context.Background(), pinger{err: errors.New("down")}, time.Second, metrics))
	assertMetric(t, metrics, "dispatch_store_healthy", "gauge", 0)
}

func assertMetric(t *testing.T, m *observability.Metrics, name, kind string, value int) {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		require.Equal(t, strings.ToUpper(kind), f.GetType().String())
		require.Len(t, f.GetMetric(), 1)
		metric := f.GetMetric()[0]
		got := metric.GetGauge().GetValue()
		if kind == "counter" {
			got = metric.GetCounter().GetValue()
		}
		assert.Equal(t, float64(value), got)
		return
	}
	t.Fatalf("metric %s not found", name)
}
