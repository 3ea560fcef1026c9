package unit

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// Status is the lifecycle state of an actor.
type Status string

const (
	StatusStanding    Status = "standing"
	StatusKneeling    Status = "kneeling"
	StatusPanicking   Status = "panicking"
	StatusBerserk     Status = "berserk"
	StatusUnconscious Status = "unconscious"
	StatusDead        Status = "dead"
	StatusIgnored     Status = "ignored"
)

// Event names a status transition.
type Event string

const (
	EventKneel    Event = "kneel"
	EventStand    Event = "stand"
	EventPanic    Event = "panic"
	EventBerserk  Event = "berserk"
	EventRecover  Event = "recover"
	EventKnockout Event = "knockout"
	EventWake     Event = "wake"
	EventKill     Event = "kill"
	EventIgnore   Event = "ignore"
)

// ErrIllegalTransition is returned when an event does not apply to the current status.
var ErrIllegalTransition = errors.New("illegal status transition")

func names(statuses ...Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var statusEvents = fsm.Events{
	{Name: string(EventKneel), Src: names(StatusStanding), Dst: string(StatusKneeling)},
	{Name: string(EventStand), Src: names(StatusKneeling), Dst: string(StatusStanding)},
	{Name: string(EventPanic), Src: names(StatusStanding, StatusKneeling), Dst: string(StatusPanicking)},
	{Name: string(EventBerserk), Src: names(StatusStanding, StatusKneeling), Dst: string(StatusBerserk)},
	{Name: string(EventRecover), Src: names(StatusPanicking, StatusBerserk), Dst: string(StatusStanding)},
	{Name: string(EventKnockout), Src: names(StatusStanding, StatusKneeling, StatusPanicking, StatusBerserk), Dst: string(StatusUnconscious)},
	{Name: string(EventWake), Src: names(StatusUnconscious), Dst: string(StatusStanding)},
	{Name: string(EventKill), Src: names(StatusStanding, StatusKneeling, StatusPanicking, StatusBerserk, StatusUnconscious), Dst: string(StatusDead)},
	{Name: string(EventIgnore), Src: names(StatusStanding, StatusKneeling, StatusPanicking, StatusBerserk, StatusUnconscious, StatusDead), Dst: string(StatusIgnored)},
}

// newStatusMachine builds the per-actor machine. onOut fires when the actor becomes dead or
// unconscious.
func newStatusMachine(initial Status, onOut func()) *fsm.FSM {
	if initial == "" {
		initial = StatusStanding
	}
	out := func(context.Context, *fsm.Event) {
		if onOut != nil {
			onOut()
		}
	}
	return fsm.NewFSM(string(initial), statusEvents, fsm.Callbacks{
		"enter_" + string(StatusDead):        out,
		"enter_" + string(StatusUnconscious): out,
	})
}

func fire(ctx context.Context, machine *fsm.FSM, event Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := machine.Event(ctx, string(event))
	if err == nil {
		return nil
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return fmt.Errorf("%w: %s from %s: %v", ErrIllegalTransition, event, machine.Current(), err)
}
