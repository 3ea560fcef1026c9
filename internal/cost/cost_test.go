package cost

import (
	"errors"
	"testing"
)

func TestCanAffordReportsTimeUnitsBeforeEnergy(t *testing.T) {
	//1.- A cost failing both time units and energy must name time units.
	pools := Pools{TimeUnits: 10, Energy: 5, Health: 50, Morale: 50}
	ok, reason := CanAfford(pools, Cost{TimeUnits: 20, Energy: 10})
	if ok {
		t.Fatalf("expected cost to be rejected")
	}
	if reason != ReasonTimeUnits {
		t.Fatalf("expected reason %q, got %q", ReasonTimeUnits, reason)
	}
}

func TestCanAffordCheckOrder(t *testing.T) {
	base := Pools{TimeUnits: 50, Energy: 50, Health: 40, Stun: 0, Morale: 60}
	cases := []struct {
		name   string
		pools  Pools
		cost   Cost
		reason Reason
	}{
		{name: "energy", pools: base, cost: Cost{TimeUnits: 10, Energy: 51}, reason: ReasonEnergy},
		{name: "morale floor is exclusive", pools: base, cost: Cost{TimeUnits: 10, MoraleFloor: 60}, reason: ReasonMorale},
		{name: "health floor is exclusive", pools: base, cost: Cost{TimeUnits: 10, HealthFloor: 40}, reason: ReasonHealth},
		{name: "stun margin", pools: Pools{TimeUnits: 50, Energy: 50, Health: 40, Stun: 30, Morale: 60}, cost: Cost{TimeUnits: 10, StunFloor: 5, HealthFloor: 5}, reason: ReasonStun},
		{name: "affordable", pools: base, cost: Cost{TimeUnits: 50, Energy: 50, MoraleFloor: 59, HealthFloor: 39}, reason: ReasonNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := CanAfford(tc.pools, tc.cost)
			if reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, reason)
			}
			if ok != (tc.reason == ReasonNone) {
				t.Fatalf("unexpected affordability %v for reason %q", ok, reason)
			}
		})
	}
}

func TestZeroTimeUnitCostIsSilentNoAction(t *testing.T) {
	pools := Pools{TimeUnits: 50, Energy: 50, Health: 50, Morale: 50}
	ok, reason := CanAfford(pools, Cost{Energy: 5})
	if ok || reason != ReasonNone {
		t.Fatalf("expected silent rejection, got ok=%v reason=%q", ok, reason)
	}
	if err := Spend(&pools, Cost{Energy: 5}); !errors.Is(err, ErrNoAction) {
		t.Fatalf("expected ErrNoAction, got %v", err)
	}
	if pools.Energy != 50 {
		t.Fatalf("energy must not change, got %d", pools.Energy)
	}
}

func TestSpendInsufficientTimeUnitsLeavesPoolsUntouched(t *testing.T) {
	//1.- Actor with 40 time units attempts a 45 time unit action.
	pools := Pools{TimeUnits: 40, Energy: 30, Health: 35, Stun: 2, Morale: 80}
	before := pools

	ok, reason := CanAfford(pools, Cost{TimeUnits: 45})
	if ok || reason != ReasonTimeUnits {
		t.Fatalf("expected time-units rejection, got ok=%v reason=%q", ok, reason)
	}

	//2.- Spend must surface the same reason without mutating anything.
	err := Spend(&pools, Cost{TimeUnits: 45})
	var affordErr *AffordError
	if !errors.As(err, &affordErr) || affordErr.Reason != ReasonTimeUnits {
		t.Fatalf("expected AffordError with time-units, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientTimeUnits) {
		t.Fatalf("expected errors.Is to match ErrInsufficientTimeUnits")
	}
	if pools != before {
		t.Fatalf("pools mutated: before %+v after %+v", before, pools)
	}
}

func TestSpendMatchesCanAffordAndOnlyDeductsTimeUnitsAndEnergy(t *testing.T) {
	//1.- Sweep a grid of pools and costs and compare both entry points.
	for tu := 0; tu <= 20; tu += 5 {
		for energy := 0; energy <= 20; energy += 5 {
			for stun := 0; stun <= 30; stun += 10 {
				for floor := 0; floor <= 20; floor += 10 {
					pools := Pools{TimeUnits: 12, Energy: 9, Health: 30, Stun: stun, Morale: 15}
					c := Cost{TimeUnits: tu, Energy: energy, MoraleFloor: floor, HealthFloor: floor / 2, StunFloor: floor / 4}
					ok, _ := CanAfford(pools, c)
					before := pools
					err := Spend(&pools, c)
					if ok != (err == nil) {
						t.Fatalf("spend/canAfford disagree for %+v %s: ok=%v err=%v", before, c, ok, err)
					}
					if !ok {
						if pools != before {
							t.Fatalf("failed spend mutated pools %+v -> %+v", before, pools)
						}
						continue
					}
					//2.- On success only time units and energy move, by exactly the cost.
					if pools.TimeUnits != before.TimeUnits-c.TimeUnits || pools.Energy != before.Energy-c.Energy {
						t.Fatalf("unexpected deduction %+v -> %+v for %s", before, pools, c)
					}
					if pools.Health != before.Health || pools.Stun != before.Stun || pools.Morale != before.Morale {
						t.Fatalf("read-only pools changed %+v -> %+v", before, pools)
					}
					if pools.TimeUnits < 0 || pools.Energy < 0 {
						t.Fatalf("pools went negative: %+v", pools)
					}
				}
			}
		}
	}
}

func TestNegativeCostPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for negative cost")
		}
	}()
	CanAfford(Pools{TimeUnits: 10}, Cost{TimeUnits: 5, Energy: -1})
}

func TestSpendOnNilPoolsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil pools")
		}
	}()
	_ = Spend(nil, Cost{TimeUnits: 5})
}

func TestReservePolicies(t *testing.T) {
	if got := HostileReserve(ReserveAuto, 60); got != 24 {
		t.Fatalf("expected 40%% of 60 reserved, got %d", got)
	}
	if got := HostileReserve(ReserveAimed, 61); got != 30 {
		t.Fatalf("expected 50%% of 61 reserved, got %d", got)
	}
	//1.- A weapon without autoshot falls back to the snap shot price.
	mode, tu := PlayerReserve(ReserveAuto, ModeCosts{Snap: 18, Aimed: 40}, false)
	if mode != ReserveSnap || tu != 18 {
		t.Fatalf("expected snap fallback, got %s/%d", mode, tu)
	}
	//2.- With nothing to fire only the kneel reserve remains.
	mode, tu = PlayerReserve(ReserveAimed, ModeCosts{}, true)
	if mode != ReserveKneel || tu != KneelTimeUnits {
		t.Fatalf("expected kneel reserve, got %s/%d", mode, tu)
	}
	if mode, tu = PlayerReserve(ReserveNone, ModeCosts{Snap: 10}, false); mode != ReserveNone || tu != 0 {
		t.Fatalf("expected no reserve, got %s/%d", mode, tu)
	}
}
