package unit

import (
	"errors"
	"sort"

	"squadfire/battlecore/internal/geom"
)

// ErrUnknownActor is returned for stale or foreign handles.
var ErrUnknownActor = errors.New("unknown actor")

// Roster owns every actor of a battle.
type Roster struct {
	actors Arena[Actor]
	order  []Handle
	nextID int
}

// NewRoster creates an empty roster.
func NewRoster() *Roster { return &Roster{nextID: 1} }

// Add registers the actor and returns its handle. Identifiers are assigned in insertion order
// unless the actor already carries one.
func (r *Roster) Add(actor Actor, initial Status) Handle {
	if actor.ID == 0 {
		actor.ID = r.nextID
	}
	if actor.ID >= r.nextID {
		r.nextID = actor.ID + 1
	}
	if actor.Size <= 0 {
		actor.Size = 1
	}
	h := r.actors.Insert(actor)
	stored := r.actors.Get(h)
	stored.Handle = h
	stored.status = newStatusMachine(initial, func() { r.forget(h) })
	r.order = append(r.order, h)
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.actors.Get(r.order[i]).ID < r.actors.Get(r.order[j]).ID
	})
	return h
}

// Get resolves a handle.
func (r *Roster) Get(h Handle) *Actor {
	if r == nil {
		return nil
	}
	return r.actors.Get(h)
}

// ByID resolves an actor identifier.
func (r *Roster) ByID(id int) *Actor {
	for _, h := range r.order {
		if a := r.actors.Get(h); a != nil && a.ID == id {
			return a
		}
	}
	return nil
}

// All returns every actor ordered by identifier.
func (r *Roster) All() []*Actor {
	out := make([]*Actor, 0, len(r.order))
	for _, h := range r.order {
		if a := r.actors.Get(h); a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of registered actors.
func (r *Roster) Len() int { return len(r.order) }

// OccupantAt reports the identifier of the active actor standing on the tile.
func (r *Roster) OccupantAt(p geom.Position) (int, bool) {
	for _, h := range r.order {
		a := r.actors.Get(h)
		if a != nil && !a.Out() && a.Position == p {
			return a.ID, true
		}
	}
	return 0, false
}

// ActorAt returns the active actor on the tile.
func (r *Roster) ActorAt(p geom.Position) *Actor {
	id, ok := r.OccupantAt(p)
	if !ok {
		return nil
	}
	return r.ByID(id)
}

// NextSelectable returns the next actor of side after current, wrapping around. When
// markCurrent is set the current actor is flagged as not reselectable first. The zero handle
// is returned when nobody is left.
func (r *Roster) NextSelectable(side Faction, current Handle, markCurrent bool) Handle {
	if cur := r.Get(current); cur != nil && markCurrent {
		cur.DontReselect = true
	}
	start := 0
	for i, h := range r.order {
		if h == current {
			start = i + 1
			break
		}
	}
	n := len(r.order)
	for k := 0; k < n; k++ {
		h := r.order[(start+k)%n]
		if a := r.actors.Get(h); a.Selectable(side, true) {
			return h
		}
	}
	return Handle{}
}

// forget drops an incapacitated actor from every visibility list.
func (r *Roster) forget(gone Handle) {
	for _, h := range r.order {
		a := r.actors.Get(h)
		if a == nil || len(a.VisibleUnits) == 0 {
			continue
		}
		kept := a.VisibleUnits[:0]
		for _, v := range a.VisibleUnits {
			if v != gone {
				kept = append(kept, v)
			}
		}
		a.VisibleUnits = kept
	}
}

// Restore forces an actor status, used when loading snapshots.
func (r *Roster) Restore(h Handle, s Status) error {
	a := r.Get(h)
	if a == nil {
		return ErrUnknownActor
	}
	a.restoreStatus(s)
	if a.Out() {
		r.forget(h)
	}
	return nil
}
