// Package movement decides which participants change sectors after a lap.
//
// Sectors are processed from the highest index down to sector 0. Inside a sector the
// occupants are ranked by their final value (ties keep roster order). Participants
// below the sector band drop to the next lower sector with room, only the rank-0
// participant of a sector may move up, and only if the next sector has room. Every
// participant is evaluated at most once per lap, based on the sector it occupied
// when the lap started.
package movement

import (
	"cmp"
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/boostrace/pkg/model"
)

type Resolver struct {
	track     *model.Track
	totalLaps int
}

func NewResolver(track *model.Track, totalLaps int) *Resolver {
	return &Resolver{track: track, totalLaps: totalLaps}
}

type ranked struct {
	p     *model.Participant
	value int
	order int // roster order
}

// Resolve applies the movements for one lap to the participants and returns one
// movement per participant that has a final value (roster order).
// Participants without a value or already finished are left untouched.
//
//nolint:whitespace // can't make both editor and linter happy
func (r *Resolver) Resolve(
	participants []*model.Participant,
	finalValues map[string]int,
) []model.Movement {
	occupancy := make([]int, len(r.track.Sectors))
	bySector := make([][]ranked, len(r.track.Sectors))
	for i, p := range participants {
		occupancy[p.SectorIndex]++
		if p.Finished {
			continue
		}
		v, ok := finalValues[p.PlayerID]
		if !ok {
			continue
		}
		bySector[p.SectorIndex] = append(bySector[p.SectorIndex],
			ranked{p: p, value: v, order: i})
	}

	result := make(map[string]model.Movement, len(finalValues))
	for s := r.track.LastIndex(); s >= 0; s-- {
		occupants := bySector[s]
		slices.SortStableFunc(occupants, func(a, b ranked) int {
			return cmp.Compare(b.value, a.value)
		})
		for rank, o := range occupants {
			result[o.p.PlayerID] = r.evaluate(o, rank, occupancy)
		}
	}

	return lo.FilterMap(participants, func(p *model.Participant, _ int) (model.Movement, bool) {
		m, ok := result[p.PlayerID]
		return m, ok
	})
}

func (r *Resolver) evaluate(o ranked, rank int, occupancy []int) model.Movement {
	from := o.p.SectorIndex
	sector := &r.track.Sectors[from]
	stay := model.Movement{
		PlayerID: o.p.PlayerID, FromSector: from, ToSector: from,
		Kind: model.StayedInSector,
	}

	switch {
	case o.value < sector.MinValue:
		target, ok := r.lowerWithRoom(from, occupancy)
		if !ok {
			return stay
		}
		r.relocate(o.p, target, occupancy)
		return model.Movement{
			PlayerID: o.p.PlayerID, FromSector: from, ToSector: target,
			Kind: model.MovedDown,
		}

	case o.value > sector.MaxValue && rank == 0:
		if from == r.track.LastIndex() {
			return r.completeLap(o.p, occupancy)
		}
		if !r.track.Sectors[from+1].HasRoom(occupancy[from+1]) {
			return stay
		}
		r.relocate(o.p, from+1, occupancy)
		return model.Movement{
			PlayerID: o.p.PlayerID, FromSector: from, ToSector: from + 1,
			Kind: model.MovedUp,
		}

	default:
		return stay
	}
}

// lowerWithRoom searches downwards from the sector below current.
// Sector 0 is unlimited, so a search starting above 0 always succeeds.
func (r *Resolver) lowerWithRoom(current int, occupancy []int) (int, bool) {
	for t := current - 1; t >= 0; t-- {
		if r.track.Sectors[t].HasRoom(occupancy[t]) {
			return t, true
		}
	}
	return current, false
}

func (r *Resolver) completeLap(p *model.Participant, occupancy []int) model.Movement {
	from := p.SectorIndex
	p.CurrentLap++
	if p.CurrentLap > r.totalLaps {
		// finished participants remain in the last sector, which is unlimited
		p.Finished = true
		return model.Movement{
			PlayerID: p.PlayerID, FromSector: from, ToSector: from,
			Kind: model.FinishedRace,
		}
	}
	r.relocate(p, 0, occupancy)
	return model.Movement{
		PlayerID: p.PlayerID, FromSector: from, ToSector: 0,
		Kind: model.FinishedLap,
	}
}

func (r *Resolver) relocate(p *model.Participant, target int, occupancy []int) {
	occupancy[p.SectorIndex]--
	occupancy[target]++
	p.SectorIndex = target
}

// Rerank assigns PositionInSector (starting at 1) by cumulative value descending,
// ties keep roster order. It returns the occupants per sector.
//
//nolint:whitespace // can't make both editor and linter happy
func Rerank(
	track *model.Track,
	participants []*model.Participant,
) []model.SectorPosition {
	groups := make([][]*model.Participant, len(track.Sectors))
	for _, p := range participants {
		groups[p.SectorIndex] = append(groups[p.SectorIndex], p)
	}
	ret := make([]model.SectorPosition, len(track.Sectors))
	for s, occupants := range groups {
		slices.SortStableFunc(occupants, func(a, b *model.Participant) int {
			return cmp.Compare(b.CumulativeValue, a.CumulativeValue)
		})
		for i, p := range occupants {
			p.PositionInSector = i + 1
		}
		ret[s] = model.SectorPosition{
			SectorIndex: s,
			Players: lo.Map(occupants, func(p *model.Participant, _ int) string {
				return p.PlayerID
			}),
		}
	}
	return ret
}
