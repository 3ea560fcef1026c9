// Package dice provides the random source abstraction shared by the combat packages.
package dice

import "math/rand"

// Source yields uniformly distributed integers in [0, n).
type Source interface {
	Intn(n int) int
}

// New returns a seeded source suitable for reproducible battles.
func New(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Gen returns an integer in the inclusive range [lo, hi].
func Gen(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + src.Intn(hi-lo+1)
}

// Percent reports a success for a chance expressed in percent.
func Percent(src Source, chance int) bool {
	if chance <= 0 {
		return false
	}
	if chance >= 100 {
		return true
	}
	return Gen(src, 0, 99) < chance
}

// Sequence replays scripted values; each call consumes the next value reduced modulo n.
// When the script runs out the last value repeats.
type Sequence struct {
	Values []int
	next   int
}

// Intn implements Source.
func (s *Sequence) Intn(n int) int {
	if n <= 0 || len(s.Values) == 0 {
		return 0
	}
	idx := s.next
	if idx >= len(s.Values) {
		idx = len(s.Values) - 1
	} else {
		s.next++
	}
	v := s.Values[idx] % n
	if v < 0 {
		v += n
	}
	return v
}

// Consumed reports how many scripted values were drawn.
func (s *Sequence) Consumed() int { return s.next }
