package ai

import "squadfire/battlecore/internal/combat"

// Env is the expression environment a doctrine rule is evaluated against.
type Env struct {
	Number         int
	TimeUnits      int
	BaseTimeUnits  int
	Energy         int
	Morale         int
	Health         int
	MaxHealth      int
	Stun           int
	VisibleEnemies int
	// NearestEnemy is the tile distance to the closest visible enemy, -1 without one.
	NearestEnemy int
	HasWeapon    bool
	Ammo         int
	Primed       bool
	Kneeling     bool
	Charging     bool

	weapon *combat.Weapon
}

// CanFire reports whether the held weapon supports the mode and the actor has the time units.
func (e Env) CanFire(mode string) bool {
	if e.weapon == nil || !e.weapon.Supports(combat.Mode(mode)) {
		return false
	}
	return e.weapon.TimeUnits(combat.Mode(mode), e.BaseTimeUnits) <= e.TimeUnits
}

// Archetype returns the held weapon family, empty when unarmed.
func (e Env) Archetype() string {
	if e.weapon == nil {
		return ""
	}
	return string(e.weapon.Archetype)
}

// HealthRatio returns remaining health as a fraction of the base.
func (e Env) HealthRatio() float64 {
	if e.MaxHealth <= 0 {
		return 0
	}
	return float64(e.Health) / float64(e.MaxHealth)
}
