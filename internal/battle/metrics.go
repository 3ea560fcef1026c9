package battle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/casualty"
	"squadfire/battlecore/internal/cost"
)

const instrumentationName = "squadfire/battlecore/internal/battle"

type instruments struct {
	tasks      metric.Int64Counter
	casualties metric.Int64Counter
	turns      metric.Int64Counter
	refusals   metric.Int64Counter
	queueDepth metric.Int64ObservableGauge
}

// newInstruments registers the battle instruments on the global meter provider, which is a
// no-op until an SDK is installed.
func newInstruments(depth func() int) (*instruments, error) {
	return newInstrumentsFrom(otel.Meter(instrumentationName), depth)
}

func newInstrumentsFrom(m metric.Meter, depth func() int) (*instruments, error) {
	var (
		in  instruments
		err error
	)
	if in.tasks, err = m.Int64Counter("battle.tasks.completed", metric.WithDescription("Action tasks completed by kind")); err != nil {
		return nil, fmt.Errorf("creating task counter: %w", err)
	}
	if in.casualties, err = m.Int64Counter("battle.casualties", metric.WithDescription("Casualties by outcome")); err != nil {
		return nil, fmt.Errorf("creating casualty counter: %w", err)
	}
	if in.turns, err = m.Int64Counter("battle.turns.ended", metric.WithDescription("Side turns ended")); err != nil {
		return nil, fmt.Errorf("creating turn counter: %w", err)
	}
	if in.refusals, err = m.Int64Counter("battle.actions.refused", metric.WithDescription("Affordability failures by reason")); err != nil {
		return nil, fmt.Errorf("creating refusal counter: %w", err)
	}
	if in.queueDepth, err = m.Int64ObservableGauge("battle.queue.depth", metric.WithDescription("Queued action tasks")); err != nil {
		return nil, fmt.Errorf("creating queue gauge: %w", err)
	}
	if depth != nil {
		_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(in.queueDepth, int64(depth()))
			return nil
		}, in.queueDepth)
		if err != nil {
			return nil, fmt.Errorf("registering queue callback: %w", err)
		}
	}
	return &in, nil
}

func noopInstruments() *instruments {
	in, _ := newInstrumentsFrom(noop.NewMeterProvider().Meter(instrumentationName), nil)
	return in
}

func (in *instruments) taskCompleted(ctx context.Context, kind action.Kind) {
	in.tasks.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (in *instruments) casualty(ctx context.Context, outcome casualty.Outcome) {
	in.casualties.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (in *instruments) turnEnded(ctx context.Context, side string) {
	in.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("side", side)))
}

func (in *instruments) refused(ctx context.Context, reason cost.Reason) {
	in.refusals.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}
