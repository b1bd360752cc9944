package model

import (
	"fmt"

	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
)

// Sector is a performance band on the track. A participant whose final value for a
// lap lies within [MinValue,MaxValue] stays in the sector.
// Capacity nil means unlimited.
type Sector struct {
	Index    int    `json:"index" yaml:"-"`
	MinValue int    `json:"minValue" yaml:"min"`
	MaxValue int    `json:"maxValue" yaml:"max"`
	Capacity *int   `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

func (s Sector) Unlimited() bool {
	return s.Capacity == nil
}

// HasRoom reports whether a sector holding occupants participants can accept one more.
func (s Sector) HasRoom(occupants int) bool {
	return s.Capacity == nil || occupants < *s.Capacity
}

func (s Sector) Contains(value int) bool {
	return value >= s.MinValue && value <= s.MaxValue
}

type Track struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Sectors []Sector `json:"sectors"`
}

// NewTrack creates a validated track. The sector indexes are assigned from the
// slice positions.
func NewTrack(id int, name string, sectors []Sector) (*Track, error) {
	t := &Track{ID: id, Name: name, Sectors: make([]Sector, len(sectors))}
	for i := range sectors {
		t.Sectors[i] = sectors[i]
		t.Sectors[i].Index = i
		if sectors[i].Capacity != nil {
			c := *sectors[i].Capacity
			t.Sectors[i].Capacity = &c
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Track) Validate() error {
	if len(t.Sectors) == 0 {
		return raceerr.Track("track has no sectors", 0)
	}
	for i := range t.Sectors {
		s := &t.Sectors[i]
		if s.Index != i {
			return raceerr.Track(fmt.Sprintf("sector index mismatch at position %d", i), s.Index)
		}
		if s.MinValue > s.MaxValue {
			return raceerr.Track(fmt.Sprintf("sector %d: min exceeds max", i), s.MinValue)
		}
		if s.Capacity != nil && *s.Capacity <= 0 {
			return raceerr.Track(fmt.Sprintf("sector %d: capacity must be positive", i),
				*s.Capacity)
		}
	}
	if !t.Sectors[0].Unlimited() {
		return raceerr.Track("first sector must have unlimited capacity", 0)
	}
	if !t.Last().Unlimited() {
		return raceerr.Track("last sector must have unlimited capacity", t.Last().Index)
	}
	return nil
}

func (t *Track) Last() *Sector {
	return &t.Sectors[len(t.Sectors)-1]
}

func (t *Track) LastIndex() int {
	return len(t.Sectors) - 1
}

func (t *Track) Sector(idx int) *Sector {
	if idx < 0 || idx >= len(t.Sectors) {
		return nil
	}
	return &t.Sectors[idx]
}

// Cap is a helper to build sectors with a limited capacity.
func Cap(n int) *int {
	return &n
}
