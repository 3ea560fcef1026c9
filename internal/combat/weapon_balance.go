package combat

import (
	"encoding/json"
	"sync"

	_ "embed"
)

// Archetype enumerates the supported item behaviour families.
type Archetype string

const (
	ArchetypeFirearm   Archetype = "firearm"
	ArchetypeMelee     Archetype = "melee"
	ArchetypeGrenade   Archetype = "grenade"
	ArchetypeProximity Archetype = "proximity"
	ArchetypeLauncher  Archetype = "launcher"
	ArchetypePsiAmp    Archetype = "psiamp"
	ArchetypeMedikit   Archetype = "medikit"
)

// Mode names the way an item is used; each mode carries its own price and accuracy.
type Mode string

const (
	ModeSnap        Mode = "snapshot"
	ModeAuto        Mode = "autoshot"
	ModeAimed       Mode = "aimed"
	ModeThrow       Mode = "throw"
	ModeMelee       Mode = "melee"
	ModePrime       Mode = "prime"
	ModeLaunch      Mode = "launch"
	ModeMindControl Mode = "mindcontrol"
	ModePanic       Mode = "panic"
	ModeUse         Mode = "use"
)

// ModeProfile prices a mode. Time units are a share of the actor's base time units
// unless Flat is set.
type ModeProfile struct {
	TimeUnitsPercent int  `json:"timeUnitsPercent"`
	Accuracy         int  `json:"accuracy"`
	Energy           int  `json:"energy,omitempty"`
	Flat             bool `json:"flat,omitempty"`
}

// ArchetypeConfig defines the baseline balance values for an archetype.
type ArchetypeConfig struct {
	DamageType    DamageType           `json:"damageType"`
	Power         int                  `json:"power"`
	BlastRadius   int                  `json:"blastRadius,omitempty"`
	MinRange      int                  `json:"minRange,omitempty"`
	AimRange      int                  `json:"aimRange,omitempty"`
	Dropoff       int                  `json:"dropoff,omitempty"`
	Rounds        int                  `json:"rounds,omitempty"`
	AutoShots     int                  `json:"autoShots,omitempty"`
	Waypoints     int                  `json:"waypoints,omitempty"`
	FuseType      string               `json:"fuseType,omitempty"`
	SpecialChance int                  `json:"specialChance,omitempty"`
	Modes         map[Mode]ModeProfile `json:"modes"`
}

// VariantConfig customises an archetype for a specific item identifier.
type VariantConfig struct {
	Archetype     Archetype            `json:"archetype"`
	DamageType    DamageType           `json:"damageType,omitempty"`
	Power         *int                 `json:"power,omitempty"`
	BlastRadius   *int                 `json:"blastRadius,omitempty"`
	MinRange      *int                 `json:"minRange,omitempty"`
	AimRange      *int                 `json:"aimRange,omitempty"`
	Dropoff       *int                 `json:"dropoff,omitempty"`
	Rounds        *int                 `json:"rounds,omitempty"`
	AutoShots     *int                 `json:"autoShots,omitempty"`
	SpecialChance *int                 `json:"specialChance,omitempty"`
	Modes         map[Mode]ModeProfile `json:"modes,omitempty"`
	DisableModes  []Mode               `json:"disableModes,omitempty"`
}

// BalanceCatalog mirrors the structure of weapon_balance.json.
type BalanceCatalog struct {
	Archetypes map[Archetype]ArchetypeConfig `json:"archetypes"`
	Weapons    map[string]VariantConfig      `json:"weapons"`
}

// Clone copies the catalog so callers never mutate the cached one.
func (c BalanceCatalog) Clone() BalanceCatalog {
	clone := BalanceCatalog{
		Archetypes: make(map[Archetype]ArchetypeConfig, len(c.Archetypes)),
		Weapons:    make(map[string]VariantConfig, len(c.Weapons)),
	}
	for key, value := range c.Archetypes {
		value.Modes = cloneModes(value.Modes)
		clone.Archetypes[key] = value
	}
	for key, value := range c.Weapons {
		value.Modes = cloneModes(value.Modes)
		value.DisableModes = append([]Mode(nil), value.DisableModes...)
		clone.Weapons[key] = value
	}
	return clone
}

func cloneModes(modes map[Mode]ModeProfile) map[Mode]ModeProfile {
	if modes == nil {
		return nil
	}
	out := make(map[Mode]ModeProfile, len(modes))
	for k, v := range modes {
		out[k] = v
	}
	return out
}

var (
	balanceOnce sync.Once
	balanceData BalanceCatalog
	balanceErr  error
)

//go:embed weapon_balance.json
var balancePayload []byte

// Balance exposes the parsed item catalog shared across battles.
func Balance() BalanceCatalog {
	balanceOnce.Do(func() {
		//1.- Parse the embedded JSON payload once so every battle shares the same rules.
		balanceErr = json.Unmarshal(balancePayload, &balanceData)
	})
	//2.- A broken catalog is a build defect, surface it immediately.
	if balanceErr != nil {
		panic(balanceErr)
	}
	return balanceData.Clone()
}
