package combat

import (
	"testing"

	"squadfire/battlecore/internal/dice"
)

func TestResolveHitRollsAroundPower(t *testing.T) {
	rifle := MustResolveWeapon("rifle")
	//1.- Gen(50,150) draws Intn(101); 0 yields the minimum, 100 the maximum.
	low := ResolveHit(rifle, &dice.Sequence{Values: []int{0}})
	high := ResolveHit(rifle, &dice.Sequence{Values: []int{100}})
	if low.Health != 15 || high.Health != 45 {
		t.Fatalf("expected 15..45 health damage, got %d and %d", low.Health, high.Health)
	}
	if low.Stun != 0 {
		t.Fatalf("armor piercing must not stun")
	}
	if low.Breakdown[DamageSourceDirect] != 15 {
		t.Fatalf("expected direct breakdown, got %+v", low.Breakdown)
	}
}

func TestResolveHitStunGoesToStunPool(t *testing.T) {
	rod := MustResolveWeapon("stun-rod")
	result := ResolveHit(rod, &dice.Sequence{Values: []int{50}})
	if result.Health != 0 || result.Stun != 65 {
		t.Fatalf("expected 65 stun and no health damage, got %+v", result)
	}
	if result.Total() != 65 {
		t.Fatalf("unexpected total %d", result.Total())
	}
}

func TestResolveBlastFallsOff(t *testing.T) {
	grenade := MustResolveWeapon("grenade")
	src := &dice.Sequence{Values: []int{50}}
	center := ResolveBlast(grenade, 0, src)
	edge := ResolveBlast(grenade, 3, src)
	outside := ResolveBlast(grenade, 4, src)
	if center.Health != 50 {
		t.Fatalf("expected full power at the epicentre, got %d", center.Health)
	}
	if edge.Health <= 0 || edge.Health >= center.Health {
		t.Fatalf("expected reduced edge damage, got %d", edge.Health)
	}
	if outside.Total() != 0 {
		t.Fatalf("expected no damage outside the radius, got %d", outside.Total())
	}
}

func TestDamageLoggingFieldsOrdered(t *testing.T) {
	result := ResolveHit(MustResolveWeapon("rifle"), &dice.Sequence{Values: []int{50}})
	fields := result.LoggingFields()
	if len(fields) != 4 || fields[0].Key != "damage_direct" || fields[2].Key != "damage_health" {
		t.Fatalf("unexpected fields %+v", fields)
	}
}
