// Package boost models the boost hand of a participant: five cards with the values
// 0..4, each usable once per cycle. The hand is replenished as a unit once the last
// card has been used.
package boost

import (
	"encoding/json"

	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
)

const (
	MinValue   = 0
	MaxValue   = 4
	HandSize   = MaxValue - MinValue + 1
	firstCycle = 1
)

// ValidValue reports whether v is a selectable boost value.
func ValidValue(v int) bool {
	return v >= MinValue && v <= MaxValue
}

type Resource struct {
	available       [HandSize]bool
	cardsRemaining  int
	currentCycle    int
	cyclesCompleted int
}

// Usage describes the outcome of a successful UseCard call.
type Usage struct {
	Value               int
	CycleNumber         int // cycle the card was drawn from
	CardsRemainingAfter int // as observed by the caller, 5 after a replenishment
	Replenished         bool
}

func NewResource() *Resource {
	r := &Resource{currentCycle: firstCycle}
	r.fill()
	return r
}

func (r *Resource) fill() {
	for i := range r.available {
		r.available[i] = true
	}
	r.cardsRemaining = HandSize
}

// IsAvailable returns false for every value outside 0..4.
func (r *Resource) IsAvailable(value int) bool {
	if !ValidValue(value) {
		return false
	}
	return r.available[value-MinValue]
}

// UseCard consumes the card with the given value. If this was the last card of the
// cycle the hand is replenished before returning.
func (r *Resource) UseCard(value int) (Usage, error) {
	if !r.IsAvailable(value) {
		return Usage{}, raceerr.New(raceerr.KindCardUnavailable, "", value)
	}
	usage := Usage{Value: value, CycleNumber: r.currentCycle}
	r.available[value-MinValue] = false
	r.cardsRemaining--
	if r.cardsRemaining == 0 {
		r.fill()
		r.cyclesCompleted++
		r.currentCycle++
		usage.Replenished = true
	}
	usage.CardsRemainingAfter = r.cardsRemaining
	return usage, nil
}

// AvailableCards returns the usable values in ascending order.
func (r *Resource) AvailableCards() []int {
	ret := make([]int, 0, r.cardsRemaining)
	for i, ok := range r.available {
		if ok {
			ret = append(ret, i+MinValue)
		}
	}
	return ret
}

// LowestAvailable returns the smallest usable value. A hand always holds at least
// one card.
func (r *Resource) LowestAvailable() int {
	for i, ok := range r.available {
		if ok {
			return i + MinValue
		}
	}
	return MinValue
}

func (r *Resource) CardsRemaining() int  { return r.cardsRemaining }
func (r *Resource) CurrentCycle() int    { return r.currentCycle }
func (r *Resource) CyclesCompleted() int { return r.cyclesCompleted }

func (r *Resource) Clone() *Resource {
	c := *r
	return &c
}

type resourceJSON struct {
	Availability    map[int]bool `json:"availability"`
	CardsRemaining  int          `json:"cardsRemaining"`
	CurrentCycle    int          `json:"currentCycle"`
	CyclesCompleted int          `json:"cyclesCompleted"`
}

func (r *Resource) MarshalJSON() ([]byte, error) {
	data := resourceJSON{
		Availability:    make(map[int]bool, HandSize),
		CardsRemaining:  r.cardsRemaining,
		CurrentCycle:    r.currentCycle,
		CyclesCompleted: r.cyclesCompleted,
	}
	for i, ok := range r.available {
		data.Availability[i+MinValue] = ok
	}
	return json.Marshal(data)
}

// UnmarshalJSON restores a hand. Entries outside 0..4 are ignored and the
// remaining count is derived from the availability flags.
func (r *Resource) UnmarshalJSON(b []byte) error {
	var data resourceJSON
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	var restored Resource
	for v, ok := range data.Availability {
		if ValidValue(v) && ok {
			restored.available[v-MinValue] = true
			restored.cardsRemaining++
		}
	}
	restored.currentCycle = max(data.CurrentCycle, firstCycle)
	restored.cyclesCompleted = max(data.CyclesCompleted, 0)
	if restored.cardsRemaining == 0 {
		restored.fill()
	}
	*r = restored
	return nil
}
