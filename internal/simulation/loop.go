package simulation

import (
	"context"
	"sync"
	"time"

	"squadfire/battlecore/internal/logging"
)

// Ticker advances a battle by one step and reports whether it wants another.
type Ticker interface {
	Tick(ctx context.Context) bool
}

// TickerFunc adapts a function to Ticker.
type TickerFunc func(ctx context.Context) bool

// Tick implements Ticker.
func (f TickerFunc) Tick(ctx context.Context) bool { return f(ctx) }

// AfterTick runs on the loop goroutine once a tick has completed.
type AfterTick func(ctx context.Context, tick int)

// Stop reasons reported in Result.
const (
	ReasonFinished  = "finished"
	ReasonTickLimit = "tick-limit"
	ReasonCancelled = "cancelled"
)

// Result describes how a run ended.
type Result struct {
	Ticks   int
	Reason  string
	Elapsed time.Duration
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxTicks stops the run after n ticks; zero means no limit.
func WithMaxTicks(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxTicks = n
		}
	}
}

// WithMonitor records tick durations into m.
func WithMonitor(m *TickMonitor) Option {
	return func(l *Loop) { l.monitor = m }
}

// WithAfterTick appends a hook run after every tick.
func WithAfterTick(f AfterTick) Option {
	return func(l *Loop) {
		if f != nil {
			l.after = append(l.after, f)
		}
	}
}

// WithLogger overrides the loop logger.
func WithLogger(log *logging.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// Loop drives a ticker at a fixed timestep. A zero step runs unthrottled.
type Loop struct {
	step     time.Duration
	target   Ticker
	maxTicks int
	monitor  *TickMonitor
	after    []AfterTick
	log      *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// NewLoop configures a loop that targets the provided ticks per second. A rate of zero or
// below runs as fast as the ticker allows, which is what headless runs want.
func NewLoop(targetHz float64, target Ticker, opts ...Option) *Loop {
	if target == nil {
		target = TickerFunc(func(context.Context) bool { return false })
	}
	l := &Loop{target: target, log: logging.L()}
	if targetHz > 0 {
		l.step = time.Duration(float64(time.Second) / targetHz)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Run ticks until the ticker finishes, the tick limit is reached or ctx ends.
func (l *Loop) Run(ctx context.Context) Result {
	started := time.Now()
	ticks := 0
	reason := l.run(ctx, &ticks)
	result := Result{Ticks: ticks, Reason: reason, Elapsed: time.Since(started)}
	l.log.Info("battle loop stopped",
		logging.Int("ticks", result.Ticks),
		logging.String("reason", result.Reason),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result
}

func (l *Loop) run(ctx context.Context, ticks *int) string {
	if l.step <= 0 {
		for {
			if ctx.Err() != nil {
				return ReasonCancelled
			}
			if reason, stop := l.tick(ctx, ticks); stop {
				return reason
			}
		}
	}

	ticker := time.NewTicker(l.step)
	defer ticker.Stop()
	last := time.Now()
	accumulator := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return ReasonCancelled
		case now := <-ticker.C:
			//1.- Accumulate elapsed time and run fixed steps while catching up.
			accumulator += now.Sub(last)
			last = now
			for accumulator >= l.step {
				accumulator -= l.step
				if reason, stop := l.tick(ctx, ticks); stop {
					return reason
				}
			}
		}
	}
}

// tick runs one step plus the hooks and reports whether the run is over.
func (l *Loop) tick(ctx context.Context, ticks *int) (string, bool) {
	started := time.Now()
	more := l.target.Tick(ctx)
	l.monitor.Observe(time.Since(started))
	*ticks++
	for _, f := range l.after {
		f(ctx, *ticks)
	}
	switch {
	case !more:
		return ReasonFinished, true
	case l.maxTicks > 0 && *ticks >= l.maxTicks:
		return ReasonTickLimit, true
	}
	return "", false
}

// Start runs the loop on its own goroutine until Stop or ctx ends.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	go func() {
		defer close(done)
		result := l.Run(runCtx)
		l.mu.Lock()
		l.result = result
		l.mu.Unlock()
	}()
}

// Done is closed once a started loop has returned.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Stop cancels a started loop, waits for it and returns its result.
func (l *Loop) Stop() Result {
	if l == nil {
		return Result{}
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return Result{}
	}
	cancel()
	<-done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// StepDuration exposes the configured timestep for testing.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
