package unit

import (
	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/geom"
)

// ItemHandle addresses an item in the armory.
type ItemHandle = Handle

// Unprimed marks a grenade whose fuse has not been set.
const Unprimed = -1

// Item is a piece of equipment, carried or lying on a tile.
type Item struct {
	Handle        ItemHandle
	Weapon        *combat.Weapon
	Owner         Handle
	PreviousOwner Handle
	Position      geom.Position
	OnGround      bool
	FuseTimer     int
	Ammo          int
}

// Primed reports whether the fuse is armed.
func (i *Item) Primed() bool { return i != nil && i.FuseTimer >= 0 }

// Armory owns every item of a battle.
type Armory struct {
	items Arena[Item]
}

// NewArmory creates an empty armory.
func NewArmory() *Armory { return &Armory{} }

// Add registers the item, copying the weapon rounds as starting ammunition.
func (a *Armory) Add(item Item) ItemHandle {
	if item.Ammo == 0 && item.Weapon != nil {
		item.Ammo = item.Weapon.Rounds
	}
	h := a.items.Insert(item)
	a.items.Get(h).Handle = h
	return h
}

// Issue creates an unprimed item from the catalog and puts it in the actor's main hand, or
// off hand when the main hand is taken.
func (a *Armory) Issue(actor *Actor, weaponID string) (ItemHandle, error) {
	weapon, err := combat.ResolveWeapon(weaponID)
	if err != nil {
		return Handle{}, err
	}
	h := a.Add(Item{Weapon: weapon, Owner: actor.Handle, FuseTimer: Unprimed, Position: actor.Position})
	if !actor.MainHand.Valid() {
		actor.MainHand = h
	} else {
		actor.OffHand = h
	}
	return h, nil
}

// Get resolves an item handle.
func (a *Armory) Get(h ItemHandle) *Item {
	if a == nil {
		return nil
	}
	return a.items.Get(h)
}

// Remove destroys the item.
func (a *Armory) Remove(h ItemHandle) bool { return a.items.Remove(h) }

// Drop puts the item on the tile and clears the owner's hand.
func (a *Armory) Drop(owner *Actor, h ItemHandle, at geom.Position) {
	item := a.Get(h)
	if item == nil {
		return
	}
	if owner != nil {
		if owner.MainHand == h {
			owner.MainHand = Handle{}
		}
		if owner.OffHand == h {
			owner.OffHand = Handle{}
		}
		item.PreviousOwner = owner.Handle
	}
	item.Owner = Handle{}
	item.OnGround = true
	item.Position = at
}

// DropAll empties both hands of the actor onto its tile.
func (a *Armory) DropAll(owner *Actor) {
	if owner == nil {
		return
	}
	for _, h := range []ItemHandle{owner.MainHand, owner.OffHand} {
		if h.Valid() {
			a.Drop(owner, h, owner.Position)
		}
	}
}

// Ground returns every item lying on the battlefield in handle order.
func (a *Armory) Ground() []*Item {
	var out []*Item
	a.items.Each(func(_ Handle, item *Item) bool {
		if item.OnGround {
			out = append(out, item)
		}
		return true
	})
	return out
}

// Held returns the first item held by the actor, main hand first.
func (a *Armory) Held(owner *Actor) *Item {
	if owner == nil {
		return nil
	}
	if item := a.Get(owner.MainHand); item != nil {
		return item
	}
	return a.Get(owner.OffHand)
}

// All returns every item, carried or on the ground, in handle order.
func (a *Armory) All() []*Item {
	var out []*Item
	a.items.Each(func(_ Handle, item *Item) bool {
		out = append(out, item)
		return true
	})
	return out
}
