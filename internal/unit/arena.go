package unit

// Handle addresses an arena slot. The generation guards against reuse after removal so a
// stale handle resolves to nothing instead of a different entity.
type Handle struct {
	Index int    `json:"index"`
	Gen   uint32 `json:"gen"`
}

// Valid reports whether the handle was ever issued.
func (h Handle) Valid() bool { return h.Gen != 0 }

type slot[T any] struct {
	value *T
	gen   uint32
	live  bool
}

// Arena stores values addressed by generation-checked handles. Pointers returned by Get stay
// valid across inserts.
type Arena[T any] struct {
	slots []slot[T]
	free  []int
}

// Insert stores the value and returns its handle.
func (a *Arena[T]) Insert(value T) Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.gen++
		s.value = &value
		s.live = true
		return Handle{Index: idx, Gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{value: &value, gen: 1, live: true})
	return Handle{Index: len(a.slots) - 1, Gen: 1}
}

// Get resolves the handle, returning nil for stale or unknown handles.
func (a *Arena[T]) Get(h Handle) *T {
	if !h.Valid() || h.Index < 0 || h.Index >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		return nil
	}
	return s.value
}

// Remove frees the slot; outstanding handles become stale.
func (a *Arena[T]) Remove(h Handle) bool {
	if a.Get(h) == nil {
		return false
	}
	s := &a.slots[h.Index]
	s.value = nil
	s.live = false
	a.free = append(a.free, h.Index)
	return true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return len(a.slots) - len(a.free) }

// Each visits live values in slot order until fn returns false.
func (a *Arena[T]) Each(fn func(Handle, *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !fn(Handle{Index: i, Gen: s.gen}, s.value) {
			return
		}
	}
}
