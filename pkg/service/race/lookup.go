package race

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/boostrace/pkg/race/engine"
)

type (
	// entry serializes all mutations of one race. race is a cached copy of the
	// stored aggregate, nil if it has to be loaded.
	entry struct {
		mutex      sync.Mutex
		race       *engine.Race
		lapStarted time.Time
	}
	// Lookup holds one entry per race that was touched by this process.
	Lookup struct {
		mutex   sync.Mutex
		entries map[string]*entry
	}
)

func NewLookup() *Lookup {
	return &Lookup{
		entries: make(map[string]*entry),
	}
}

// get returns the entry for raceID, creating it if needed.
func (l *Lookup) get(raceID string) *entry {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	e, ok := l.entries[raceID]
	if !ok {
		e = &entry{}
		l.entries[raceID] = e
	}
	return e
}

func (l *Lookup) remove(raceID string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.entries, raceID)
}

// IDs returns the ids of the races currently held (sorted).
func (l *Lookup) IDs() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	ret := lo.Keys(l.entries)
	slices.Sort(ret)
	return ret
}
