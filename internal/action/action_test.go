package action

import (
	"context"
	"testing"

	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/unit"
)

func TestKindClassification(t *testing.T) {
	if !KindLaunch.Shot() || KindThrow.Shot() {
		t.Fatalf("launch is a shot, throw is not")
	}
	if !KindMelee.Attack() || KindMindControl.Attack() {
		t.Fatalf("melee needs facing, mind control does not")
	}
	if !KindUse.Psionic() {
		t.Fatalf("use is resolved like psi")
	}
	if KindAimedShot.Mode() != combat.ModeAimed || KindWalk.Mode() != "" {
		t.Fatalf("unexpected mode mapping")
	}
	if k, ok := ParseKind("autoshot"); !ok || k != KindAutoshot {
		t.Fatalf("expected autoshot, got %v", k)
	}
}

func TestPriceUsesWeaponAndStance(t *testing.T) {
	roster := unit.NewRoster()
	h := roster.Add(unit.Actor{Soldier: true, Stats: unit.Stats{TimeUnits: 60}}, unit.StatusStanding)
	actor := roster.Get(h)
	rifle := combat.MustResolveWeapon("rifle")

	if got := Price(KindAimedShot, rifle, actor); got.TimeUnits != 48 {
		t.Fatalf("expected aimed shot to cost 48 TU, got %s", got)
	}
	if got := Price(KindKneel, nil, actor); got.TimeUnits != cost.KneelTimeUnits {
		t.Fatalf("expected kneel cost, got %s", got)
	}
	//1.- Standing back up is more expensive than kneeling.
	if err := actor.Transition(context.Background(), unit.EventKneel); err != nil {
		t.Fatalf("kneel: %v", err)
	}
	if got := Price(KindKneel, nil, actor); got.TimeUnits != cost.StandTimeUnits {
		t.Fatalf("expected stand cost, got %s", got)
	}
	if got := Price(KindNone, rifle, actor); got.TimeUnits != 0 {
		t.Fatalf("idle actions are free")
	}
}

func TestPendingClearKeepsActor(t *testing.T) {
	p := Pending{Actor: unit.Handle{Index: 2, Gen: 1}, Kind: KindThrow, Targeting: true}
	p.Clear()
	if p.Kind != KindNone || p.Targeting || p.Actor.Index != 2 {
		t.Fatalf("unexpected cleared action %+v", p)
	}
}
