package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/unit"
)

func envelope(kind string) *Envelope {
	return &Envelope{Kind: kind, Mission: "m-1"}
}

func TestStreamDeliverAndAck(t *testing.T) {
	//1.- Arrange a stream and subscribe a test client.
	stream := NewStream(Config{Retain: 8})
	sub, err := stream.Subscribe(context.Background(), "alpha", 4)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	//2.- Publish three notices.
	for _, kind := range []string{"shot", "hit", "casualty"} {
		if _, err := stream.Publish(envelope(kind)); err != nil {
			t.Fatalf("publish %s failed: %v", kind, err)
		}
	}

	//3.- Assert sequential delivery and sequential acknowledgement.
	for expected := uint64(1); expected <= 3; expected++ {
		select {
		case env := <-sub.Events():
			if env.Sequence != expected {
				t.Fatalf("expected sequence %d, got %d", expected, env.Sequence)
			}
			if err := sub.Ack(env.Sequence); err != nil {
				t.Fatalf("ack failed: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for envelope %d", expected)
		}
	}
	if stream.Latest() != 3 {
		t.Fatalf("expected latest sequence 3, got %d", stream.Latest())
	}
}

func TestStreamResendsUnackedOnResubscribe(t *testing.T) {
	stream := NewStream(Config{})
	sub, err := stream.Subscribe(context.Background(), "bravo", 2)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	//1.- Publish two notices and ack only the first.
	stream.Publish(envelope("shot"))
	stream.Publish(envelope("hit"))
	first := <-sub.Events()
	if err := sub.Ack(first.Sequence); err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	sub.Close()

	//2.- Reconnect and expect the unacknowledged envelope first.
	again, err := stream.Subscribe(context.Background(), "bravo", 2)
	if err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}
	select {
	case env := <-again.Events():
		if env.Sequence != 2 || env.Kind != "hit" {
			t.Fatalf("expected hit #2 to be replayed, got %s #%d", env.Kind, env.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for replay")
	}
}

func TestStreamRejectsOutOfOrderAck(t *testing.T) {
	stream := NewStream(Config{})
	sub, _ := stream.Subscribe(context.Background(), "charlie", 4)
	stream.Publish(envelope("shot"))
	stream.Publish(envelope("hit"))

	if err := sub.Ack(2); !errors.Is(err, ErrOutOfOrderAck) {
		t.Fatalf("expected ErrOutOfOrderAck, got %v", err)
	}
	if err := sub.Ack(1); err != nil {
		t.Fatalf("ack 1 failed: %v", err)
	}
	if err := sub.Ack(1); !errors.Is(err, ErrOutOfOrderAck) {
		t.Fatalf("expected duplicate ack to be out of order while #2 is pending, got %v", err)
	}
}

func TestStreamRetentionKeepsUnackedHistory(t *testing.T) {
	stream := NewStream(Config{Retain: 2})
	if _, err := stream.Subscribe(context.Background(), "slow", 8); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		stream.Publish(envelope("shot"))
	}
	if got := len(stream.Retained()); got != 5 {
		t.Fatalf("expected slow subscriber to pin all 5 envelopes, got %d", got)
	}

	detached := NewStream(Config{Retain: 2})
	for i := 0; i < 5; i++ {
		detached.Publish(envelope("shot"))
	}
	retained := detached.Retained()
	if len(retained) != 2 || retained[0].Sequence != 4 {
		t.Fatalf("expected the newest two envelopes, got %d starting at %d", len(retained), retained[0].Sequence)
	}
}

func TestSinkConvertsNotices(t *testing.T) {
	stream := NewStream(Config{})
	sub, _ := stream.Subscribe(context.Background(), "viewer", 4)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sink := NewSink(stream, func() time.Time { return at }, nil)

	sink.Publish(battle.Notice{
		Mission:  "m-7",
		Turn:     3,
		Side:     unit.FactionPlayer,
		Kind:     battle.NoticeCasualty,
		Actor:    4,
		Target:   9,
		Position: geom.Position{X: 2, Y: 5},
		Fields:   map[string]any{"outcome": "death", "victim_side": unit.FactionHostile},
	})

	env := <-sub.Events()
	if env.Kind != string(battle.NoticeCasualty) || env.Mission != "m-7" || env.Turn != 3 {
		t.Fatalf("unexpected envelope header %+v", env)
	}
	if !env.OccurredAt.AsTime().Equal(at) {
		t.Fatalf("expected timestamp %v, got %v", at, env.OccurredAt.AsTime())
	}
	fields := env.Payload.AsMap()
	if fields["outcome"] != "death" || fields["victim_side"] != unit.FactionHostile.String() {
		t.Fatalf("unexpected payload %v", fields)
	}
	if fields["actor"] != float64(4) || fields["y"] != float64(5) {
		t.Fatalf("expected numeric fields as numbers, got %v", fields)
	}
}
