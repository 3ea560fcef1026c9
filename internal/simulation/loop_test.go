package simulation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"squadfire/battlecore/internal/logging"
)

func countdown(n int) (Ticker, *int32) {
	var calls int32
	return TickerFunc(func(context.Context) bool {
		return atomic.AddInt32(&calls, 1) < int32(n)
	}), &calls
}

func TestLoopRunsUntilTickerFinishes(t *testing.T) {
	ticker, calls := countdown(5)
	monitor := NewTickMonitor()
	var hooks []int
	loop := NewLoop(0, ticker,
		WithMonitor(monitor),
		WithLogger(logging.NewTestLogger()),
		WithAfterTick(func(_ context.Context, tick int) { hooks = append(hooks, tick) }),
	)

	result := loop.Run(context.Background())
	if result.Reason != ReasonFinished || result.Ticks != 5 {
		t.Fatalf("unexpected result %+v", result)
	}
	if atomic.LoadInt32(calls) != 5 {
		t.Fatalf("expected 5 ticks, got %d", *calls)
	}
	if len(hooks) != 5 || hooks[4] != 5 {
		t.Fatalf("expected the hook after every tick, got %v", hooks)
	}
}

func TestLoopHonoursTickLimit(t *testing.T) {
	ticker, _ := countdown(1000)
	loop := NewLoop(0, ticker, WithMaxTicks(7), WithLogger(logging.NewTestLogger()))
	if result := loop.Run(context.Background()); result.Reason != ReasonTickLimit || result.Ticks != 7 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLoopStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ticker, calls := countdown(1000)
	loop := NewLoop(0, ticker, WithLogger(logging.NewTestLogger()))
	if result := loop.Run(ctx); result.Reason != ReasonCancelled || result.Ticks != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Fatal("expected a cancelled run not to tick")
	}
}

func TestLoopStartStopAtFixedRate(t *testing.T) {
	ticker, calls := countdown(1 << 30)
	loop := NewLoop(200, ticker, WithLogger(logging.NewTestLogger()))
	loop.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	result := loop.Stop()
	if atomic.LoadInt32(calls) == 0 || result.Ticks == 0 {
		t.Fatalf("expected the loop to tick at least once, got %+v", result)
	}
	if result.Reason != ReasonCancelled {
		t.Fatalf("expected a cancelled run, got %q", result.Reason)
	}
	select {
	case <-loop.Done():
	default:
		t.Fatal("expected the done channel to be closed")
	}
}

func TestLoopStepDuration(t *testing.T) {
	if step := NewLoop(120, nil).StepDuration(); step != time.Second/120 {
		t.Fatalf("unexpected step duration %v", step)
	}
	if step := NewLoop(0, nil).StepDuration(); step != 0 {
		t.Fatalf("expected an unthrottled loop, got %v", step)
	}
}

func TestTickMonitorAggregates(t *testing.T) {
	monitor := NewTickMonitor()
	monitor.Observe(2 * time.Millisecond)
	monitor.Observe(4 * time.Millisecond)
	monitor.Observe(0)
	snap := monitor.Snapshot()
	if snap.Samples != 2 || snap.Average != 3*time.Millisecond || snap.Max != 4*time.Millisecond || snap.Last != 4*time.Millisecond {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	//1.- The recent window forgets ticks older than its size.
	for i := 0; i < recentWindow; i++ {
		monitor.Observe(time.Millisecond)
	}
	snap = monitor.Snapshot()
	if snap.Recent != time.Millisecond || snap.Max != 4*time.Millisecond || snap.Last != time.Millisecond {
		t.Fatalf("unexpected rolling snapshot %+v", snap)
	}
	monitor.Reset()
	if monitor.Snapshot().Samples != 0 {
		t.Fatal("expected reset to clear samples")
	}
}
