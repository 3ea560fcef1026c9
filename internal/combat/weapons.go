package combat

import (
	"errors"
	"fmt"
)

// ErrUnknownWeapon is returned for identifiers missing from the catalog.
var ErrUnknownWeapon = errors.New("unknown weapon identifier")

// Fuse types.
const (
	FuseInstant = "instant"
	FuseSet     = "set"
)

// Weapon merges archetype defaults with per-item overrides for runtime use.
type Weapon struct {
	ID            string
	Archetype     Archetype
	DamageType    DamageType
	Power         int
	BlastRadius   int
	MinRange      int
	AimRange      int
	Dropoff       int
	Rounds        int
	AutoShots     int
	Waypoints     int
	FuseType      string
	SpecialChance int
	Modes         map[Mode]ModeProfile
}

// ResolveWeapon returns the merged rules for the item identifier.
func ResolveWeapon(id string) (*Weapon, error) {
	catalog := Balance()
	variant, ok := catalog.Weapons[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWeapon, id)
	}
	base, ok := catalog.Archetypes[variant.Archetype]
	if !ok {
		return nil, fmt.Errorf("missing archetype %q for %q", variant.Archetype, id)
	}
	//1.- Start from the archetype and overlay every field the variant overrides.
	weapon := &Weapon{
		ID:            id,
		Archetype:     variant.Archetype,
		DamageType:    base.DamageType,
		Power:         pickInt(base.Power, variant.Power),
		BlastRadius:   pickInt(base.BlastRadius, variant.BlastRadius),
		MinRange:      pickInt(base.MinRange, variant.MinRange),
		AimRange:      pickInt(base.AimRange, variant.AimRange),
		Dropoff:       pickInt(base.Dropoff, variant.Dropoff),
		Rounds:        pickInt(base.Rounds, variant.Rounds),
		AutoShots:     pickInt(base.AutoShots, variant.AutoShots),
		Waypoints:     base.Waypoints,
		FuseType:      base.FuseType,
		SpecialChance: pickInt(base.SpecialChance, variant.SpecialChance),
		Modes:         cloneModes(base.Modes),
	}
	if variant.DamageType != "" {
		weapon.DamageType = variant.DamageType
	}
	if weapon.Modes == nil {
		weapon.Modes = make(map[Mode]ModeProfile)
	}
	for mode, profile := range variant.Modes {
		weapon.Modes[mode] = profile
	}
	//2.- Drop the modes the variant cannot fire.
	for _, mode := range variant.DisableModes {
		delete(weapon.Modes, mode)
	}
	return weapon, nil
}

// MustResolveWeapon panics on unknown identifiers; used for built-in loadouts.
func MustResolveWeapon(id string) *Weapon {
	weapon, err := ResolveWeapon(id)
	if err != nil {
		panic(err)
	}
	return weapon
}

// Supports reports whether the weapon can be used in the mode.
func (w *Weapon) Supports(mode Mode) bool {
	if w == nil {
		return false
	}
	_, ok := w.Modes[mode]
	return ok
}

// TimeUnits returns the time-unit price of the mode for an actor with the given base time units.
// Zero means the mode is unavailable.
func (w *Weapon) TimeUnits(mode Mode, baseTimeUnits int) int {
	if w == nil {
		return 0
	}
	profile, ok := w.Modes[mode]
	if !ok {
		return 0
	}
	if profile.Flat {
		return profile.TimeUnitsPercent
	}
	tu := baseTimeUnits * profile.TimeUnitsPercent / 100
	if tu == 0 && profile.TimeUnitsPercent > 0 {
		tu = 1
	}
	return tu
}

// Energy returns the energy price of the mode.
func (w *Weapon) Energy(mode Mode) int {
	if w == nil {
		return 0
	}
	return w.Modes[mode].Energy
}

// Accuracy returns the mode accuracy as a fraction.
func (w *Weapon) Accuracy(mode Mode) float64 {
	if w == nil {
		return 0
	}
	return float64(w.Modes[mode].Accuracy) / 100
}

// Explosive reports whether hits detonate in an area.
func (w *Weapon) Explosive() bool {
	return w != nil && w.BlastRadius > 0
}

// Grenade reports whether the item is primed and thrown.
func (w *Weapon) Grenade() bool {
	return w != nil && (w.Archetype == ArchetypeGrenade || w.Archetype == ArchetypeProximity)
}

func pickInt(base int, override *int) int {
	if override != nil {
		return *override
	}
	return base
}
