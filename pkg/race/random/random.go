// Package random provides the random draws of a race (starting sector and lap
// characteristic) behind an interface so tests can inject fixed sequences.
package random

import (
	"math/rand/v2"
	"sync"
)

type Source interface {
	// IntN returns a value in [0,n). n must be > 0.
	IntN(n int) int
	Bool() bool
}

type pcgSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a seeded source. The same seed yields the same sequence.
func New(seed uint64) Source {
	return &pcgSource{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *pcgSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.IntN(n)
}

func (s *pcgSource) Bool() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.IntN(2) == 1
}

// Scripted replays the given values in a cycle. Ints are reduced modulo n.
type Scripted struct {
	ints  []int
	bools []bool
	ii    int
	bi    int
}

func NewScripted(ints []int, bools []bool) *Scripted {
	return &Scripted{ints: ints, bools: bools}
}

func (s *Scripted) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[s.ii%len(s.ints)]
	s.ii++
	if v < 0 {
		v = -v
	}
	return v % n
}

func (s *Scripted) Bool() bool {
	if len(s.bools) == 0 {
		return true
	}
	v := s.bools[s.bi%len(s.bools)]
	s.bi++
	return v
}
