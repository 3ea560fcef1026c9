package bots

import (
	"context"
	"errors"
	"testing"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/ai"
	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/mission"
	"squadfire/battlecore/internal/unit"
)

type fakeCommander struct {
	roster    *unit.Roster
	session   battle.Session
	outcome   mission.Outcome
	queued    []action.Kind
	refuse    error
	submitted []action.Pending
	selected  []unit.Handle
	endTurns  int
}

func (f *fakeCommander) Actor(h unit.Handle) *unit.Actor { return f.roster.Get(h) }
func (f *fakeCommander) HeldItem(*unit.Actor) *unit.Item { return nil }
func (f *fakeCommander) VisibleEnemies(*unit.Actor) []*unit.Actor { return nil }
func (f *fakeCommander) Session() battle.Session { return f.session }
func (f *fakeCommander) Outcome() mission.Outcome { return f.outcome }
func (f *fakeCommander) Queued() []action.Kind { return f.queued }
func (f *fakeCommander) Roster() *unit.Roster { return f.roster }
func (f *fakeCommander) Select(h unit.Handle) error { f.selected = append(f.selected, h); return nil }
func (f *fakeCommander) RequestEndTurn(context.Context, bool) bool { f.endTurns++; return true }
func (f *fakeCommander) SubmitAction(_ context.Context, p action.Pending) error {
	if f.refuse != nil {
		return f.refuse
	}
	f.submitted = append(f.submitted, p)
	return nil
}

func newFakeCommander(soldiers int) *fakeCommander {
	roster := unit.NewRoster()
	for i := 0; i < soldiers; i++ {
		roster.Add(unit.Actor{Soldier: true, Faction: unit.FactionPlayer, Pools: cost.Pools{TimeUnits: 50}}, unit.StatusStanding)
	}
	roster.Add(unit.Actor{Faction: unit.FactionHostile, Pools: cost.Pools{TimeUnits: 50}}, unit.StatusStanding)
	return &fakeCommander{roster: roster, session: battle.Session{Turn: 1, Side: unit.FactionPlayer}}
}

func walker(h unit.Handle, _ ai.Awareness) action.Behavior {
	return action.BehaviorFunc(func(number int) action.Pending {
		return action.Pending{Kind: action.KindWalk, Target: geom.Position{X: number}}
	})
}

func TestControllerSpendsBudgetThenEndsTurn(t *testing.T) {
	cmd := newFakeCommander(2)
	controller := NewController(ControllerConfig{ActionBound: 2, Planner: walker, Logger: logging.NewTestLogger()})
	ctx := context.Background()

	//1.- Two soldiers with two actions each, then the end of turn.
	for i := 0; i < 5; i++ {
		if !controller.Step(ctx, cmd) {
			t.Fatalf("step %d issued nothing", i)
		}
	}
	if len(cmd.submitted) != 4 {
		t.Fatalf("expected 4 submissions, got %d", len(cmd.submitted))
	}
	if cmd.endTurns != 1 {
		t.Fatalf("expected one end of turn, got %d", cmd.endTurns)
	}
	if cmd.submitted[0].Actor != cmd.submitted[1].Actor || cmd.submitted[1].Actor == cmd.submitted[2].Actor {
		t.Fatalf("expected soldiers to act in roster order: %+v", cmd.submitted)
	}
	if cmd.submitted[1].Target.X != 2 {
		t.Fatalf("expected the think counter to reach 2, got %+v", cmd.submitted[1])
	}
	if controller.Step(ctx, cmd) {
		t.Fatal("expected no request after the turn was ended")
	}

	//2.- The next turn restores the budget.
	cmd.session.Turn = 2
	if !controller.Step(ctx, cmd) || len(cmd.submitted) != 5 {
		t.Fatalf("expected a fresh budget on the next turn, got %d submissions", len(cmd.submitted))
	}
	if snap := controller.Snapshot(); snap.Turn != 2 || snap.Submitted != 5 || snap.EndTurns != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestControllerWaitsForOwnSideAndIdleQueue(t *testing.T) {
	cmd := newFakeCommander(1)
	controller := NewController(ControllerConfig{Planner: walker, Logger: logging.NewTestLogger()})
	ctx := context.Background()

	cmd.queued = []action.Kind{action.KindWalk}
	if controller.Step(ctx, cmd) {
		t.Fatal("expected the controller to wait for the running task")
	}
	cmd.queued = nil
	cmd.session.Side = unit.FactionHostile
	if controller.Step(ctx, cmd) {
		t.Fatal("expected the controller to ignore the hostile turn")
	}
	cmd.session.Side = unit.FactionPlayer
	cmd.outcome.Finished = true
	if controller.Step(ctx, cmd) {
		t.Fatal("expected the controller to stop once the mission is over")
	}
}

func TestControllerRetiresIdleAndRefusedSoldiers(t *testing.T) {
	cmd := newFakeCommander(1)
	idle := func(unit.Handle, ai.Awareness) action.Behavior {
		return action.BehaviorFunc(func(int) action.Pending { return action.Pending{Kind: action.KindNone} })
	}
	controller := NewController(ControllerConfig{Planner: idle, Logger: logging.NewTestLogger()})
	ctx := context.Background()

	if !controller.Step(ctx, cmd) || cmd.endTurns != 1 || len(cmd.submitted) != 0 {
		t.Fatalf("expected an idle squad to end the turn at once: %d submissions, %d end turns", len(cmd.submitted), cmd.endTurns)
	}

	cmd = newFakeCommander(1)
	cmd.refuse = errors.New("no path")
	controller = NewController(ControllerConfig{ActionBound: 3, Planner: walker, Logger: logging.NewTestLogger()})
	if !controller.Step(ctx, cmd) {
		t.Fatal("expected the end of turn after every attempt was refused")
	}
	if snap := controller.Snapshot(); snap.Refused != 3 || snap.EndTurns != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestControllerSkipsDrainedSoldiers(t *testing.T) {
	cmd := newFakeCommander(1)
	for _, a := range cmd.roster.All() {
		a.Pools.TimeUnits = 3
	}
	controller := NewController(ControllerConfig{MinTimeUnits: 4, Planner: walker, Logger: logging.NewTestLogger()})
	if !controller.Step(context.Background(), cmd) || len(cmd.submitted) != 0 || cmd.endTurns != 1 {
		t.Fatalf("expected drained soldiers to be skipped: %+v", cmd.submitted)
	}
}

func TestDoctrinePlannerBuildsAgents(t *testing.T) {
	cmd := newFakeCommander(1)
	planner := DoctrinePlanner(ai.Default())
	behavior := planner(cmd.roster.All()[0].Handle, cmd)
	if _, ok := behavior.(*ai.Agent); !ok {
		t.Fatalf("expected a doctrine agent, got %T", behavior)
	}
}
