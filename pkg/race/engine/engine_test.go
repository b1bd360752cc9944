//nolint:funlen,dupl // ok for tests
package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
	"github.com/mpapenbr/boostrace/pkg/race/random"
	"github.com/mpapenbr/boostrace/testsupport/racedata"
)

// all participants start in sector 0, every lap is a straight
func newRace(t *testing.T, track *model.Track, laps int, players ...string) *Race {
	t.Helper()
	r, err := New(track, laps,
		WithID("race-1"),
		WithRandomSource(random.NewScripted([]int{0}, []bool{true})))
	require.NoError(t, err)
	for _, p := range players {
		_, err := r.AddParticipant(p, "car-"+p, "pilot-"+p)
		require.NoError(t, err)
	}
	return r
}

func snapshot(t *testing.T, r *Race) string {
	t.Helper()
	data, err := json.Marshal(r)
	require.NoError(t, err)
	return string(data)
}

func TestNew_InvalidInput(t *testing.T) {
	_, err := New(nil, 3)
	require.ErrorIs(t, err, raceerr.ErrTrackInvalid)
	_, err = New(racedata.Oval(), 0)
	require.ErrorIs(t, err, raceerr.ErrTrackInvalid)
	_, err = New(&model.Track{}, 3)
	require.ErrorIs(t, err, raceerr.ErrTrackInvalid)
}

func TestRace_AddParticipant(t *testing.T) {
	r := newRace(t, racedata.Oval(), 3, "a")
	_, err := r.AddParticipant("a", "car", "pilot")
	require.ErrorIs(t, err, raceerr.ErrDuplicatePlayer)
	assert.Len(t, r.Participants, 1)

	require.NoError(t, r.Start())
	_, err = r.AddParticipant("b", "car", "pilot")
	require.ErrorIs(t, err, raceerr.ErrRaceAlreadyStarted)
}

func TestRace_AddParticipant_QualifyRespectsCapacity(t *testing.T) {
	// always draws sector 3 (capacity 1)
	r, err := New(racedata.Oval(), 3, WithRandomSource(random.NewScripted([]int{3}, nil)))
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := r.AddParticipant(id, "", "")
		require.NoError(t, err)
	}
	got := []int{}
	for _, p := range r.Participants {
		got = append(got, p.SectorIndex)
	}
	assert.Equal(t, []int{3, 2, 2, 1}, got)
}

func TestRace_Start(t *testing.T) {
	r := newRace(t, racedata.Oval(), 3)
	require.ErrorIs(t, r.Start(), raceerr.ErrEmptyRosterOnStart)
	assert.Equal(t, model.StatusWaiting, r.Status)

	_, err := r.AddParticipant("a", "", "")
	require.NoError(t, err)
	_, err = r.AddParticipant("b", "", "")
	require.NoError(t, err)
	require.NoError(t, r.Start())
	assert.Equal(t, model.StatusInProgress, r.Status)
	assert.Equal(t, 1, r.CurrentLap)
	assert.Equal(t, model.Straight, r.Characteristic)
	assert.Equal(t, 1, r.Participants[0].PositionInSector)
	assert.Equal(t, 2, r.Participants[1].PositionInSector)

	require.ErrorIs(t, r.Start(), raceerr.ErrRaceAlreadyStarted)
}

func TestRace_SubmitBeforeStart(t *testing.T) {
	r := newRace(t, racedata.Oval(), 3, "a")
	before := snapshot(t, r)
	_, err := r.SubmitAction("a", 1, racedata.CarWithBase("a", 10))
	require.ErrorIs(t, err, raceerr.ErrRaceNotInProgress)
	assert.Equal(t, before, snapshot(t, r))
}

func TestRace_BatchingGate(t *testing.T) {
	r := newRace(t, racedata.Oval(), 5, "a", "b", "c")
	require.NoError(t, r.Start())

	res, err := r.SubmitAction("b", 0, racedata.CarWithBase("b", 10))
	require.NoError(t, err)
	assert.False(t, res.LapProcessed())
	assert.Equal(t, []string{"a", "c"}, res.WaitingFor)
	assert.Equal(t, 10, res.Predicted.FinalValue)

	res, err = r.SubmitAction("a", 4, racedata.CarWithBase("a", 10))
	require.NoError(t, err)
	assert.False(t, res.LapProcessed())
	assert.Equal(t, []string{"c"}, res.WaitingFor)
	assert.Equal(t, 13, res.Predicted.FinalValue)

	res, err = r.SubmitAction("c", 2, racedata.CarWithBase("c", 10))
	require.NoError(t, err)
	require.True(t, res.LapProcessed())
	assert.Equal(t, 1, res.Lap.LapNumber)
	assert.Len(t, res.Lap.Movements, 3)
	assert.Len(t, res.Lap.Performances, 3)
	assert.Equal(t, 2, r.CurrentLap)
	assert.Empty(t, r.PendingActions)
	assert.Empty(t, r.PendingPerformance)
	assert.Equal(t, []string{"a", "b", "c"}, r.WaitingFor())
}

func TestRace_RejectionsLeaveStateUnchanged(t *testing.T) {
	r := newRace(t, racedata.Oval(), 5, "a", "b")
	require.NoError(t, r.Start())
	car := racedata.CarWithBase("a", 10)

	// use card 3 of player a in lap 1, finish the lap
	_, err := r.SubmitAction("a", 3, car)
	require.NoError(t, err)
	_, err = r.SubmitAction("b", 0, car)
	require.NoError(t, err)
	_, err = r.SubmitAction("a", 1, car)
	require.NoError(t, err)

	tests := []struct {
		name   string
		player string
		boost  int
		want   error
	}{
		{"invalid boost high", "b", 5, raceerr.ErrInvalidBoostValue},
		{"invalid boost low", "b", -1, raceerr.ErrInvalidBoostValue},
		{"unknown player", "zed", 1, raceerr.ErrPlayerNotInRace},
		{"duplicate submission", "a", 2, raceerr.ErrDuplicateSubmission},
		{"card unavailable", "b", 0, raceerr.ErrCardUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := snapshot(t, r)
			_, err := r.SubmitAction(tt.player, tt.boost, car)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, snapshot(t, r))
		})
	}

	var re *raceerr.Error
	_, err = r.SubmitAction("b", 7, car)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "b", re.PlayerID)
	assert.Equal(t, 7, re.Value)

	_, err = r.SubmitAction("b", 1, nil)
	require.ErrorIs(t, err, ErrMissingCarData)
}

func TestRace_Scenario_SingleSlot(t *testing.T) {
	r := newRace(t, racedata.ScenarioTrack(), 3, "p1", "p2")
	require.NoError(t, r.Start())

	res, err := r.SubmitAction("p1", 2, racedata.CarWithBase("p1", 10))
	require.NoError(t, err)
	assert.Equal(t, 12, res.Predicted.FinalValue)
	res, err = r.SubmitAction("p2", 1, racedata.CarWithBase("p2", 10))
	require.NoError(t, err)
	assert.Equal(t, 11, res.Predicted.FinalValue)
	require.True(t, res.LapProcessed())

	assert.Equal(t, []model.Movement{
		{PlayerID: "p1", FromSector: 0, ToSector: 1, Kind: model.MovedUp},
		{PlayerID: "p2", FromSector: 0, ToSector: 0, Kind: model.StayedInSector},
	}, res.Lap.Movements)
	assert.Equal(t, []model.SectorPosition{
		{SectorIndex: 0, Players: []string{"p2"}},
		{SectorIndex: 1, Players: []string{"p1"}},
		{SectorIndex: 2, Players: []string{}},
	}, res.Lap.SectorPositions)
	assert.Equal(t, 12, r.Participant("p1").CumulativeValue)
	assert.Equal(t, 11, r.Participant("p2").CumulativeValue)
}

func TestRace_FinishByLapLimit(t *testing.T) {
	r := newRace(t, racedata.Oval(), 2, "a", "b")
	require.NoError(t, r.Start())
	carA := racedata.CarWithBase("a", 5)
	carB := racedata.CarWithBase("b", 8)

	for lap := 1; lap <= 2; lap++ {
		_, err := r.SubmitAction("a", lap, carA)
		require.NoError(t, err)
		res, err := r.SubmitAction("b", lap, carB)
		require.NoError(t, err)
		require.True(t, res.LapProcessed())
		assert.Equal(t, lap == 2, res.Lap.RaceFinished)
	}
	assert.Equal(t, model.StatusFinished, r.Status)
	assert.Equal(t, 3, r.CurrentLap)
	require.NotNil(t, r.Participant("a").FinishPosition)
	require.NotNil(t, r.Participant("b").FinishPosition)
	// same sector, b has the higher cumulative value and thus the better position
	assert.Equal(t, 1, *r.Participant("b").FinishPosition)
	assert.Equal(t, 2, *r.Participant("a").FinishPosition)

	_, err := r.SubmitAction("a", 3, carA)
	require.ErrorIs(t, err, raceerr.ErrRaceNotInProgress)
}

func TestRace_FinishWhenAllFinished(t *testing.T) {
	track, err := model.NewTrack(9, "sprint", []model.Sector{{MinValue: 0, MaxValue: 10}})
	require.NoError(t, err)
	r := newRace(t, track, 1, "a", "b")
	require.NoError(t, r.Start())

	// the capped base equals the ceiling, any boost above 0 leaves the band
	res, err := r.SubmitAction("a", 1, racedata.CarWithBase("a", 30))
	require.NoError(t, err)
	assert.Equal(t, 11, res.Predicted.FinalValue)
	assert.False(t, res.LapProcessed())
	res, err = r.SubmitAction("b", 0, racedata.CarWithBase("b", 5))
	require.NoError(t, err)
	require.True(t, res.LapProcessed())
	assert.Equal(t, model.FinishedRace, res.Lap.Movements[0].Kind)
	assert.Equal(t, model.StayedInSector, res.Lap.Movements[1].Kind)
	assert.Equal(t, model.StatusFinished, r.Status)
	assert.Equal(t, 1, *r.Participant("a").FinishPosition)
	assert.Equal(t, 2, *r.Participant("b").FinishPosition)
}

func TestRace_PlayerAlreadyFinished(t *testing.T) {
	track, err := model.NewTrack(9, "sprint", []model.Sector{{MinValue: 0, MaxValue: 10}})
	require.NoError(t, err)
	r := newRace(t, track, 5, "a", "b")
	require.NoError(t, r.Start())
	r.Participant("a").Finished = true

	before := snapshot(t, r)
	_, err = r.SubmitAction("a", 0, racedata.CarWithBase("a", 1))
	require.ErrorIs(t, err, raceerr.ErrPlayerAlreadyFinished)
	assert.Equal(t, before, snapshot(t, r))

	res, err := r.SubmitAction("b", 0, racedata.CarWithBase("b", 1))
	require.NoError(t, err)
	assert.True(t, res.LapProcessed())
}

func TestRace_BoostHistoryAndReplenish(t *testing.T) {
	r := newRace(t, racedata.Oval(), 10, "solo")
	require.NoError(t, r.Start())
	car := racedata.CarWithBase("solo", 10)
	for _, b := range []int{4, 0, 3, 1, 2, 2} {
		_, err := r.SubmitAction("solo", b, car)
		require.NoError(t, err)
	}
	p := r.Participant("solo")
	require.Len(t, p.BoostHistory, 6)
	assert.Equal(t, model.UsageRecord{
		Lap: 5, BoostValue: 2, CycleNumber: 1, CardsRemainingAfter: 5,
		ReplenishmentOccurred: true,
	}, p.BoostHistory[4])
	assert.Equal(t, model.UsageRecord{
		Lap: 6, BoostValue: 2, CycleNumber: 2, CardsRemainingAfter: 4,
	}, p.BoostHistory[5])
	assert.Equal(t, 2, p.BoostHand.CurrentCycle())
	assert.Equal(t, 1, p.BoostHand.CyclesCompleted())
}

func TestRace_Cancel(t *testing.T) {
	r := newRace(t, racedata.Oval(), 3, "a", "b")
	require.NoError(t, r.Start())
	_, err := r.SubmitAction("a", 1, racedata.CarWithBase("a", 3))
	require.NoError(t, err)
	require.NoError(t, r.Cancel())
	assert.Equal(t, model.StatusCancelled, r.Status)
	assert.Empty(t, r.PendingActions)
	require.ErrorIs(t, r.Cancel(), raceerr.ErrRaceNotInProgress)
	_, err = r.SubmitAction("b", 1, racedata.CarWithBase("b", 3))
	require.ErrorIs(t, err, raceerr.ErrRaceNotInProgress)
}

func TestRace_JSONRoundTrip(t *testing.T) {
	src := random.NewScripted([]int{0, 1}, []bool{true, false})
	r, err := New(racedata.Oval(), 6, WithID("rt"), WithRandomSource(src))
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		_, err = r.AddParticipant(id, "car-"+id, "pilot-"+id)
		require.NoError(t, err)
	}
	require.NoError(t, r.Start())
	cars := map[string]*model.ValidatedCarData{
		"a": racedata.Car("a", 9, 4), "b": racedata.Car("b", 7, 7), "c": racedata.Car("c", 3, 12),
	}
	for _, b := range []int{1, 3} {
		for _, id := range []string{"a", "b", "c"} {
			_, err = r.SubmitAction(id, b, cars[id])
			require.NoError(t, err)
		}
	}
	// leave a pending action
	_, err = r.SubmitAction("b", 0, cars["b"])
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	restored := &Race{}
	require.NoError(t, json.Unmarshal(data, restored))
	restored.SetRandomSource(src)

	assert.Equal(t, r, restored)
	again, err := json.Marshal(restored)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	// the restored race continues exactly like the original
	_, err = restored.SubmitAction("a", 0, cars["a"])
	require.NoError(t, err)
	res, err := restored.SubmitAction("c", 0, cars["c"])
	require.NoError(t, err)
	assert.True(t, res.LapProcessed())
}

func TestRace_Standings(t *testing.T) {
	r := newRace(t, racedata.Oval(), 5, "a", "b", "c", "d")
	r.Participants[0].SectorIndex = 1
	r.Participants[0].PositionInSector = 2
	r.Participants[1].SectorIndex = 1
	r.Participants[1].PositionInSector = 1
	r.Participants[2].SectorIndex = 4
	r.Participants[2].Finished = true
	r.Participants[3].SectorIndex = 3

	got := r.Standings()
	ids := []string{}
	for _, s := range got {
		ids = append(ids, s.PlayerID)
	}
	assert.Equal(t, []string{"c", "d", "b", "a"}, ids)
	assert.Equal(t, 1, got[0].Position)
	assert.Equal(t, 4, got[3].Position)
}
