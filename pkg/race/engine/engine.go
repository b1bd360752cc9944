// Package engine contains the race aggregate. It owns the track, the roster and the
// pending actions of the current lap and resolves a lap once every active
// participant has submitted a boost.
//
// The aggregate does no locking. Callers must ensure a single writer per race.
package engine

import (
	"cmp"
	"errors"
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/boost"
	"github.com/mpapenbr/boostrace/pkg/race/movement"
	"github.com/mpapenbr/boostrace/pkg/race/performance"
	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
	"github.com/mpapenbr/boostrace/pkg/race/random"
)

var ErrMissingCarData = errors.New("missing car data")

type PendingAction struct {
	PlayerID   string `json:"playerId"`
	BoostValue int    `json:"boostValue"`
}

type Race struct {
	ID                 string                                `json:"id"`
	Track              *model.Track                          `json:"track"`
	Participants       []*model.Participant                  `json:"participants"`
	CurrentLap         int                                   `json:"currentLap"`
	TotalLaps          int                                   `json:"totalLaps"`
	Status             model.RaceStatus                      `json:"status"`
	Characteristic     model.LapCharacteristic               `json:"characteristic"`
	PendingActions     []PendingAction                       `json:"pendingActions"`
	PendingPerformance map[string]model.PerformanceBreakdown `json:"pendingPerformance"`

	rnd random.Source
}

type Option func(r *Race)

func WithRandomSource(src random.Source) Option {
	return func(r *Race) {
		r.rnd = src
	}
}

func WithID(id string) Option {
	return func(r *Race) {
		r.ID = id
	}
}

// New creates a race in status Waiting. totalLaps must be at least 1.
func New(track *model.Track, totalLaps int, opts ...Option) (*Race, error) {
	if track == nil {
		return nil, raceerr.Track("no track", nil)
	}
	if err := track.Validate(); err != nil {
		return nil, err
	}
	if totalLaps < 1 {
		return nil, raceerr.Track("total laps must be positive", totalLaps)
	}
	ret := &Race{
		Track:              track,
		Participants:       make([]*model.Participant, 0),
		TotalLaps:          totalLaps,
		Status:             model.StatusWaiting,
		PendingActions:     make([]PendingAction, 0),
		PendingPerformance: make(map[string]model.PerformanceBreakdown),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// SetRandomSource attaches the random source after the race was restored from
// storage.
func (r *Race) SetRandomSource(src random.Source) {
	r.rnd = src
}

func (r *Race) source() random.Source {
	if r.rnd == nil {
		r.rnd = random.New(0)
	}
	return r.rnd
}

func (r *Race) Participant(playerID string) *model.Participant {
	p, _ := lo.Find(r.Participants, func(p *model.Participant) bool {
		return p.PlayerID == playerID
	})
	return p
}

// AddParticipant adds a player while the race is waiting. The starting sector is
// drawn from the random source, falling back to lower sectors if the drawn one is
// full.
func (r *Race) AddParticipant(playerID, carID, pilotID string) (*model.Participant, error) {
	if r.Status != model.StatusWaiting {
		return nil, raceerr.New(raceerr.KindRaceAlreadyStarted, playerID, r.Status)
	}
	if r.Participant(playerID) != nil {
		return nil, raceerr.New(raceerr.KindDuplicatePlayer, playerID, nil)
	}
	p := model.NewParticipant(playerID, carID, pilotID, r.qualify())
	r.Participants = append(r.Participants, p)
	return p, nil
}

func (r *Race) qualify() int {
	occupancy := r.occupancy()
	idx := r.source().IntN(len(r.Track.Sectors))
	for ; idx > 0; idx-- {
		if r.Track.Sectors[idx].HasRoom(occupancy[idx]) {
			break
		}
	}
	return idx
}

func (r *Race) occupancy() []int {
	ret := make([]int, len(r.Track.Sectors))
	for _, p := range r.Participants {
		ret[p.SectorIndex]++
	}
	return ret
}

func (r *Race) Start() error {
	if r.Status != model.StatusWaiting {
		return raceerr.New(raceerr.KindRaceAlreadyStarted, "", r.Status)
	}
	if len(r.Participants) == 0 {
		return raceerr.New(raceerr.KindEmptyRosterOnStart, "", nil)
	}
	r.Status = model.StatusInProgress
	r.CurrentLap = 1
	r.rollCharacteristic()
	movement.Rerank(r.Track, r.Participants)
	return nil
}

// Cancel aborts the race. Terminal races cannot be cancelled.
func (r *Race) Cancel() error {
	if r.Status.Terminal() {
		return raceerr.New(raceerr.KindRaceNotInProgress, "", r.Status)
	}
	r.Status = model.StatusCancelled
	r.clearPending()
	return nil
}

func (r *Race) rollCharacteristic() {
	if r.source().Bool() {
		r.Characteristic = model.Straight
	} else {
		r.Characteristic = model.Curve
	}
}

// WaitingFor returns the active players that have not yet submitted for the current
// lap (roster order).
func (r *Race) WaitingFor() []string {
	if r.Status != model.StatusInProgress {
		return []string{}
	}
	return lo.FilterMap(r.Participants, func(p *model.Participant, _ int) (string, bool) {
		_, pending := r.PendingPerformance[p.PlayerID]
		return p.PlayerID, !p.Finished && !pending
	})
}

func (r *Race) activeCount() int {
	return lo.CountBy(r.Participants, func(p *model.Participant) bool {
		return !p.Finished
	})
}

func (r *Race) validateSubmit(playerID string, boostValue int) (*model.Participant, error) {
	if r.Status != model.StatusInProgress {
		return nil, raceerr.New(raceerr.KindRaceNotInProgress, playerID, r.Status)
	}
	p := r.Participant(playerID)
	if p == nil {
		return nil, raceerr.New(raceerr.KindPlayerNotInRace, playerID, nil)
	}
	if p.Finished {
		return nil, raceerr.New(raceerr.KindPlayerAlreadyFinished, playerID, nil)
	}
	if !boost.ValidValue(boostValue) {
		return nil, raceerr.New(raceerr.KindInvalidBoostValue, playerID, boostValue)
	}
	if _, ok := r.PendingPerformance[playerID]; ok {
		return nil, raceerr.New(raceerr.KindDuplicateSubmission, playerID, r.CurrentLap)
	}
	if !p.BoostHand.IsAvailable(boostValue) {
		return nil, raceerr.New(raceerr.KindCardUnavailable, playerID, boostValue)
	}
	return p, nil
}

// SubmitAction records the boost choice of a player for the current lap. All checks
// are done before any state is touched, so a rejected call leaves the race
// unchanged. The call that completes the set of actions resolves the lap.
//
//nolint:whitespace // can't make both editor and linter happy
func (r *Race) SubmitAction(
	playerID string,
	boostValue int,
	car *model.ValidatedCarData,
) (*model.SubmitResult, error) {
	p, err := r.validateSubmit(playerID, boostValue)
	if err != nil {
		return nil, err
	}
	if car == nil {
		return nil, ErrMissingCarData
	}
	breakdown, err := performance.Compute(
		car, r.Characteristic, boostValue, r.Track.Sector(p.SectorIndex))
	if err != nil {
		return nil, err
	}
	breakdown.PlayerID = playerID

	usage, err := p.BoostHand.UseCard(boostValue)
	if err != nil {
		return nil, err
	}
	p.BoostHistory = append(p.BoostHistory, model.UsageRecord{
		Lap:                   r.CurrentLap,
		BoostValue:            boostValue,
		CycleNumber:           usage.CycleNumber,
		CardsRemainingAfter:   usage.CardsRemainingAfter,
		ReplenishmentOccurred: usage.Replenished,
	})
	if r.PendingPerformance == nil {
		r.PendingPerformance = make(map[string]model.PerformanceBreakdown)
	}
	r.PendingActions = append(r.PendingActions,
		PendingAction{PlayerID: playerID, BoostValue: boostValue})
	r.PendingPerformance[playerID] = breakdown

	ret := &model.SubmitResult{Predicted: breakdown}
	if len(r.PendingActions) < r.activeCount() {
		ret.WaitingFor = r.WaitingFor()
		return ret, nil
	}
	ret.Lap = r.resolveLap()
	return ret, nil
}

func (r *Race) resolveLap() *model.LapResult {
	values := lo.MapValues(r.PendingPerformance,
		func(b model.PerformanceBreakdown, _ string) int { return b.FinalValue })
	performances := lo.FilterMap(r.Participants,
		func(p *model.Participant, _ int) (model.PerformanceBreakdown, bool) {
			b, ok := r.PendingPerformance[p.PlayerID]
			return b, ok
		})

	movements := movement.NewResolver(r.Track, r.TotalLaps).
		Resolve(r.Participants, values)
	for _, p := range r.Participants {
		if v, ok := values[p.PlayerID]; ok {
			p.CumulativeValue += v
		}
	}
	result := &model.LapResult{
		LapNumber:       r.CurrentLap,
		Characteristic:  r.Characteristic,
		SectorPositions: movement.Rerank(r.Track, r.Participants),
		Movements:       movements,
		Performances:    performances,
	}

	r.clearPending()
	r.CurrentLap++
	if r.completed() {
		r.finish()
		result.RaceFinished = true
	} else {
		r.rollCharacteristic()
	}
	return result
}

func (r *Race) clearPending() {
	r.PendingActions = make([]PendingAction, 0)
	r.PendingPerformance = make(map[string]model.PerformanceBreakdown)
}

func (r *Race) completed() bool {
	return r.activeCount() == 0 || r.CurrentLap > r.TotalLaps
}

func (r *Race) finish() {
	r.Status = model.StatusFinished
	for _, s := range r.Standings() {
		pos := s.Position
		r.Participant(s.PlayerID).FinishPosition = &pos
	}
}

// Standings returns the classification: finished before unfinished, then higher
// sector, lower position in sector, higher cumulative value. Remaining ties keep
// roster order.
func (r *Race) Standings() []model.Standing {
	ordered := slices.Clone(r.Participants)
	slices.SortStableFunc(ordered, func(a, b *model.Participant) int {
		if a.Finished != b.Finished {
			if a.Finished {
				return -1
			}
			return 1
		}
		return cmp.Or(
			cmp.Compare(b.SectorIndex, a.SectorIndex),
			cmp.Compare(a.PositionInSector, b.PositionInSector),
			cmp.Compare(b.CumulativeValue, a.CumulativeValue),
		)
	})
	return lo.Map(ordered, func(p *model.Participant, i int) model.Standing {
		return model.Standing{
			Position:         i + 1,
			PlayerID:         p.PlayerID,
			Finished:         p.Finished,
			SectorIndex:      p.SectorIndex,
			PositionInSector: p.PositionInSector,
			CumulativeValue:  p.CumulativeValue,
		}
	})
}
