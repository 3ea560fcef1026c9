package combat

import (
	"fmt"
	"sort"

	"squadfire/battlecore/internal/dice"
	"squadfire/battlecore/internal/logging"
)

// DamageType classifies how damage is applied to the victim.
type DamageType string

const (
	DamageArmorPiercing DamageType = "armor_piercing"
	DamageHighExplosive DamageType = "high_explosive"
	DamagePlasma        DamageType = "plasma"
	DamageMelee         DamageType = "melee"
	DamageStun          DamageType = "stun"
	DamagePsi           DamageType = "psi"
	DamageNone          DamageType = "none"
)

// DamageSource enumerates the origins of combat damage for breakdowns.
type DamageSource string

const (
	// DamageSourceDirect captures projectiles and melee blows that strike the target.
	DamageSourceDirect DamageSource = "direct"
	// DamageSourceBlast represents area damage from an explosion.
	DamageSourceBlast DamageSource = "blast"
)

// Roll bounds applied to the weapon power.
const (
	MinDamagePercent = 50
	MaxDamagePercent = 150
)

// DamageResult collates the resolved totals alongside metadata helpers.
type DamageResult struct {
	Type DamageType
	//1.- Health is the amount removed from the victim's health pool.
	Health int
	//2.- Stun is the amount added to the victim's stun pool.
	Stun int
	//3.- Breakdown exposes the per-source contribution used by logs and notices.
	Breakdown map[DamageSource]int
}

// Total returns the combined health and stun damage.
func (r DamageResult) Total() int { return r.Health + r.Stun }

// ResolveHit rolls the damage of a direct hit.
func ResolveHit(weapon *Weapon, src dice.Source) DamageResult {
	if weapon == nil || weapon.Power <= 0 {
		return DamageResult{Type: DamageNone, Breakdown: map[DamageSource]int{}}
	}
	amount := weapon.Power * dice.Gen(src, MinDamagePercent, MaxDamagePercent) / 100
	return split(weapon.DamageType, DamageSourceDirect, amount)
}

// ResolveBlast returns the explosion damage at distance tiles from the epicentre; damage falls
// off linearly and is zero outside the blast radius.
func ResolveBlast(weapon *Weapon, distance int, src dice.Source) DamageResult {
	if weapon == nil || weapon.Power <= 0 || weapon.BlastRadius <= 0 || distance > weapon.BlastRadius {
		return DamageResult{Type: DamageNone, Breakdown: map[DamageSource]int{}}
	}
	if distance < 0 {
		distance = 0
	}
	//1.- Scale power by the remaining share of the radius, the epicentre taking full power.
	scaled := weapon.Power * (weapon.BlastRadius + 1 - distance) / (weapon.BlastRadius + 1)
	amount := scaled * dice.Gen(src, MinDamagePercent, MaxDamagePercent) / 100
	return split(weapon.DamageType, DamageSourceBlast, amount)
}

func split(kind DamageType, source DamageSource, amount int) DamageResult {
	result := DamageResult{Type: kind, Breakdown: map[DamageSource]int{}}
	if amount <= 0 {
		return result
	}
	result.Breakdown[source] = amount
	switch kind {
	case DamageStun:
		result.Stun = amount
	case DamagePsi, DamageNone:
		delete(result.Breakdown, source)
	default:
		result.Health = amount
	}
	return result
}

// LoggingFields returns structured logging fields describing the resolved damage.
func (r DamageResult) LoggingFields() []logging.Field {
	//1.- Collect per-source entries to maintain deterministic ordering in logs.
	keys := make([]DamageSource, 0, len(r.Breakdown))
	for source := range r.Breakdown {
		keys = append(keys, source)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	fields := make([]logging.Field, 0, len(keys)+3)
	for _, source := range keys {
		fields = append(fields, logging.Int(fmt.Sprintf("damage_%s", source), r.Breakdown[source]))
	}
	fields = append(fields, logging.String("damage_type", string(r.Type)))
	fields = append(fields, logging.Int("damage_health", r.Health))
	fields = append(fields, logging.Int("damage_stun", r.Stun))
	return fields
}
