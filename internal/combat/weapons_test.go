package combat

import (
	"errors"
	"testing"
)

func TestBalanceCloneIsolation(t *testing.T) {
	//1.- Mutating a returned catalog must not leak into the cached copy.
	first := Balance()
	rifle := first.Archetypes[ArchetypeFirearm]
	rifle.Modes[ModeSnap] = ModeProfile{TimeUnitsPercent: 1}
	second := Balance()
	if second.Archetypes[ArchetypeFirearm].Modes[ModeSnap].TimeUnitsPercent != 25 {
		t.Fatalf("expected cached snapshot cost to stay at 25%%, got %d", second.Archetypes[ArchetypeFirearm].Modes[ModeSnap].TimeUnitsPercent)
	}
}

func TestResolveWeaponMergesOverrides(t *testing.T) {
	pistol, err := ResolveWeapon("pistol")
	if err != nil {
		t.Fatalf("resolve pistol: %v", err)
	}
	if pistol.Power != 26 || pistol.Rounds != 12 || pistol.AimRange != 10 {
		t.Fatalf("unexpected pistol stats %+v", pistol)
	}
	if pistol.Supports(ModeAuto) {
		t.Fatalf("pistol should not fire autoshots")
	}
	//1.- Inherited values remain from the archetype.
	if pistol.Dropoff != 2 || pistol.DamageType != DamageArmorPiercing {
		t.Fatalf("expected archetype dropoff and damage type, got %d %s", pistol.Dropoff, pistol.DamageType)
	}
	if got := pistol.TimeUnits(ModeSnap, 60); got != 10 {
		t.Fatalf("expected snapshot to cost 10 TU, got %d", got)
	}

	plasma := MustResolveWeapon("plasma-pistol")
	if plasma.DamageType != DamagePlasma {
		t.Fatalf("expected plasma override, got %s", plasma.DamageType)
	}
}

func TestResolveWeaponUnknown(t *testing.T) {
	_, err := ResolveWeapon("laser-sword")
	if !errors.Is(err, ErrUnknownWeapon) {
		t.Fatalf("expected ErrUnknownWeapon, got %v", err)
	}
}

func TestWeaponModePricing(t *testing.T) {
	grenade := MustResolveWeapon("grenade")
	if !grenade.Grenade() || !grenade.Explosive() {
		t.Fatalf("expected explosive grenade")
	}
	if grenade.TimeUnits(ModeAimed, 60) != 0 {
		t.Fatalf("unsupported modes must be free of cost and unavailable")
	}
	if grenade.Energy(ModeThrow) != 2 {
		t.Fatalf("expected throw energy 2, got %d", grenade.Energy(ModeThrow))
	}
	var missing *Weapon
	if missing.Supports(ModeSnap) || missing.TimeUnits(ModeSnap, 50) != 0 || missing.Accuracy(ModeSnap) != 0 {
		t.Fatalf("nil weapon must support nothing")
	}
	//1.- Tiny pools still pay at least one time unit.
	if got := MustResolveWeapon("medikit").TimeUnits(ModeUse, 5); got != 1 {
		t.Fatalf("expected minimum cost of 1, got %d", got)
	}
}
