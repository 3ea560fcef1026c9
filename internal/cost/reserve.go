package cost

// ReserveMode names the shot a side keeps time units back for.
type ReserveMode string

const (
	ReserveNone  ReserveMode = "none"
	ReserveSnap  ReserveMode = "snapshot"
	ReserveAuto  ReserveMode = "autoshot"
	ReserveAimed ReserveMode = "aimed"
	ReserveKneel ReserveMode = "kneel"
)

const (
	// KneelTimeUnits is the price of kneeling down.
	KneelTimeUnits = 4
	// StandTimeUnits is the price of standing back up.
	StandTimeUnits = 8
)

// HostileReserve returns the extra time units an AI actor holds back for the mode,
// expressed as a share of its base time units.
func HostileReserve(mode ReserveMode, baseTimeUnits int) int {
	switch mode {
	case ReserveSnap:
		return baseTimeUnits / 3
	case ReserveAuto:
		return (baseTimeUnits / 5) * 2
	case ReserveAimed:
		return baseTimeUnits / 2
	default:
		return 0
	}
}

// ModeCosts exposes the time-unit price of each reservable shot for the held weapon.
// Zero marks a mode the weapon cannot fire.
type ModeCosts struct {
	Snap  int
	Auto  int
	Aimed int
}

// PlayerReserve resolves the time units the player side keeps back. The requested mode
// falls back auto → snap → aimed when the weapon lacks it. The kneel reserve adds 4 time
// units for standing soldiers. A zero result means nothing is reserved.
func PlayerReserve(mode ReserveMode, costs ModeCosts, kneelReserve bool) (ReserveMode, int) {
	tu := 0
	switch mode {
	case ReserveAuto:
		tu = costs.Auto
		if tu == 0 {
			mode, tu = ReserveSnap, costs.Snap
		}
		if tu == 0 {
			mode, tu = ReserveAimed, costs.Aimed
		}
	case ReserveSnap:
		tu = costs.Snap
		if tu == 0 {
			mode, tu = ReserveAimed, costs.Aimed
		}
	case ReserveAimed:
		tu = costs.Aimed
	default:
		mode = ReserveNone
	}
	if kneelReserve {
		if tu == 0 {
			mode = ReserveKneel
		}
		tu += KneelTimeUnits
	}
	if tu == 0 {
		return ReserveNone, 0
	}
	return mode, tu
}
