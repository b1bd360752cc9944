//nolint:funlen // ok for tests
package race

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/engine"
	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
	"github.com/mpapenbr/boostrace/pkg/race/random"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
	"github.com/mpapenbr/boostrace/pkg/repository/memory"
	"github.com/mpapenbr/boostrace/testsupport/racedata"
)

type recordingPublisher struct {
	mutex    sync.Mutex
	laps     map[string][]int
	finished map[string][]model.Standing
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		laps:     make(map[string][]int),
		finished: make(map[string][]model.Standing),
	}
}

//nolint:whitespace // can't make both editor and linter happy
func (p *recordingPublisher) PublishLap(
	ctx context.Context, raceID string, lap *model.LapResult,
) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.laps[raceID] = append(p.laps[raceID], lap.LapNumber)
	return nil
}

//nolint:whitespace // can't make both editor and linter happy
func (p *recordingPublisher) PublishFinished(
	ctx context.Context, raceID string, standings []model.Standing,
) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.finished[raceID] = standings
	return nil
}

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *Service
	repos api.Repositories
	pub   *recordingPublisher
	clock *fakeClock
}

// all players start in sector 0, every lap is a straight
func scripted(string) random.Source {
	return random.NewScripted([]int{0}, []bool{true})
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		repos: memory.NewRepositories(),
		pub:   newRecordingPublisher(),
		clock: &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, f.repos.Track().Create(ctx, racedata.Oval()))
	all := append([]Option{
		WithRepositories(f.repos, memory.NewTransactionManager()),
		WithPublisher(f.pub),
		WithSourceFactory(scripted),
		WithClock(f.clock.Now),
	}, opts...)
	f.svc = New(all...)
	t.Cleanup(f.svc.Close)
	require.NoError(t, f.svc.RegisterCar(ctx, racedata.CarWithBase("car-a", 5)))
	require.NoError(t, f.svc.RegisterCar(ctx, racedata.CarWithBase("car-b", 8)))
	return f
}

// startedRace creates an oval race with players a and b and starts it.
func (f *fixture) startedRace(t *testing.T, laps int) *engine.Race {
	t.Helper()
	ctx := context.Background()
	race, err := f.svc.CreateRace(ctx, racedata.Oval().ID, laps)
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, race.ID, "a", "car-a", "pilot-a")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, race.ID, "b", "car-b", "pilot-b")
	require.NoError(t, err)
	require.NoError(t, f.svc.Start(ctx, race.ID))
	return race
}

func stored(t *testing.T, svc *Service, raceID string) string {
	t.Helper()
	race, err := svc.Get(context.Background(), raceID)
	require.NoError(t, err)
	data, err := json.Marshal(race)
	require.NoError(t, err)
	return string(data)
}

func TestService_FullRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	race := f.startedRace(t, 2)

	for lap := 1; lap <= 2; lap++ {
		res, err := f.svc.Submit(ctx, race.ID, "a", lap)
		require.NoError(t, err)
		assert.False(t, res.LapProcessed())
		assert.Equal(t, []string{"b"}, res.WaitingFor)
		res, err = f.svc.Submit(ctx, race.ID, "b", lap)
		require.NoError(t, err)
		require.True(t, res.LapProcessed())
		assert.Equal(t, lap, res.Lap.LapNumber)
	}

	got, err := f.svc.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, got.Status)

	laps, err := f.svc.Laps(ctx, race.ID)
	require.NoError(t, err)
	require.Len(t, laps, 2)
	assert.True(t, laps[1].RaceFinished)

	standings, err := f.svc.Standings(ctx, race.ID)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, "b", standings[0].PlayerID)
	assert.Equal(t, "a", standings[1].PlayerID)

	assert.Equal(t, []int{1, 2}, f.pub.laps[race.ID])
	assert.Equal(t, standings, f.pub.finished[race.ID])
	assert.Empty(t, f.svc.lookup.IDs())

	_, err = f.svc.Submit(ctx, race.ID, "a", 3)
	require.ErrorIs(t, err, raceerr.ErrRaceNotInProgress)
}

func TestService_CreateRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateRace(ctx, 99, 3)
	require.ErrorIs(t, err, api.ErrNoRows)

	_, err = f.svc.CreateRace(ctx, racedata.Oval().ID, 0)
	require.Error(t, err)

	race, err := f.svc.CreateRace(ctx, racedata.Oval().ID, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, race.Status)
	assert.Equal(t, 3, race.TotalLaps)
	assert.Equal(t, racedata.Oval(), race.Track)

	ids, err := f.repos.Race().LoadIDs(ctx, model.StatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, []string{race.ID}, ids)
}

func TestService_Join(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	race, err := f.svc.CreateRace(ctx, racedata.Oval().ID, 3)
	require.NoError(t, err)

	tests := []struct {
		name    string
		player  string
		car     string
		wantErr error
	}{
		{"first", "a", "car-a", nil},
		{"unknown car", "b", "car-x", ErrUnknownCar},
		{"duplicate player", "a", "car-b", raceerr.ErrDuplicatePlayer},
		{"second", "b", "car-b", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.svc.Join(ctx, race.ID, tt.player, tt.car, "pilot")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.player, p.PlayerID)
			assert.Equal(t, 0, p.SectorIndex)
		})
	}
	got, err := f.svc.Get(ctx, race.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 2)

	_, err = f.svc.Join(ctx, "no-such-race", "c", "car-a", "pilot")
	require.ErrorIs(t, err, api.ErrNoRows)
	assert.Equal(t, []string{race.ID}, f.svc.lookup.IDs())
}

func TestService_StartEmptyRoster(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	race, err := f.svc.CreateRace(ctx, racedata.Oval().ID, 3)
	require.NoError(t, err)

	err = f.svc.Start(ctx, race.ID)
	require.ErrorIs(t, err, raceerr.ErrEmptyRosterOnStart)
	got, err := f.svc.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, got.Status)
}

func TestService_RejectedSubmitKeepsStoredState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	race := f.startedRace(t, 3)

	_, err := f.svc.Submit(ctx, race.ID, "a", 2)
	require.NoError(t, err)
	before := stored(t, f.svc, race.ID)

	tests := []struct {
		name    string
		player  string
		boost   int
		wantErr error
	}{
		{"boost out of range", "b", 7, raceerr.ErrInvalidBoostValue},
		{"duplicate submission", "a", 3, raceerr.ErrDuplicateSubmission},
		{"unknown player", "x", 1, raceerr.ErrPlayerNotInRace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, race.ID, tt.player, tt.boost)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, stored(t, f.svc, race.ID))
		})
	}

	res, err := f.svc.Submit(ctx, race.ID, "b", 2)
	require.NoError(t, err)
	assert.True(t, res.LapProcessed())

	// card 2 was used in lap 1
	_, err = f.svc.Submit(ctx, race.ID, "a", 2)
	require.ErrorIs(t, err, raceerr.ErrCardUnavailable)
}

func TestService_ContinueWithNewService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	race := f.startedRace(t, 3)
	_, err := f.svc.Submit(ctx, race.ID, "a", 1)
	require.NoError(t, err)

	other := New(
		WithRepositories(f.repos, memory.NewTransactionManager()),
		WithSourceFactory(scripted))
	defer other.Close()

	res, err := other.Submit(ctx, race.ID, "b", 1)
	require.NoError(t, err)
	require.True(t, res.LapProcessed())
	got, err := other.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentLap)
}

func TestService_Subscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	race := f.startedRace(t, 1)

	ch, cancel, err := f.svc.Subscribe(ctx, race.ID)
	require.NoError(t, err)
	defer cancel()

	_, err = f.svc.Submit(ctx, race.ID, "a", 1)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, race.ID, "b", 1)
	require.NoError(t, err)

	select {
	case lap, ok := <-ch:
		require.True(t, ok)
		assert.Equal(t, 1, lap.LapNumber)
		assert.True(t, lap.RaceFinished)
	case <-time.After(2 * time.Second):
		t.Fatal("no lap received")
	}
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after the race finished")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}

	_, _, err = f.svc.Subscribe(ctx, race.ID)
	require.ErrorIs(t, err, raceerr.ErrRaceNotInProgress)
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	race := f.startedRace(t, 3)

	ch, cancel, err := f.svc.Subscribe(ctx, race.ID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, f.svc.Cancel(ctx, race.ID))
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}

	got, err := f.svc.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	_, err = f.svc.Submit(ctx, race.ID, "a", 1)
	require.ErrorIs(t, err, raceerr.ErrRaceNotInProgress)
	require.ErrorIs(t, f.svc.Cancel(ctx, race.ID), raceerr.ErrRaceNotInProgress)
	assert.Empty(t, f.pub.finished)
}

func TestService_AutoSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	race := f.startedRace(t, 3)

	_, err := f.svc.Submit(ctx, race.ID, "a", 3)
	require.NoError(t, err)

	players, err := f.svc.AutoSubmit(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, players)

	got, err := f.svc.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentLap)
	assert.Equal(t, []int{1, 2, 3, 4}, got.Participant("b").BoostHand.AvailableCards())

	players, err = f.svc.AutoSubmit(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, players)
	assert.Equal(t, []int{1, 2}, f.pub.laps[race.ID])
}

// raceWithPlayers creates a started race with players p0..p(n-1).
func (f *fixture) raceWithPlayers(t *testing.T, n, laps int) *engine.Race {
	t.Helper()
	ctx := context.Background()
	race, err := f.svc.CreateRace(ctx, racedata.Oval().ID, laps)
	require.NoError(t, err)
	for i := range n {
		carID := fmt.Sprintf("car-p%d", i)
		require.NoError(t, f.svc.RegisterCar(ctx, racedata.CarWithBase(carID, 5+i)))
		_, err = f.svc.Join(ctx, race.ID, fmt.Sprintf("p%d", i), carID, "pilot")
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Start(ctx, race.ID))
	return race
}

func TestService_ConcurrentSubmit(t *testing.T) {
	const players = 6
	ctx := context.Background()
	f := newFixture(t)
	race := f.raceWithPlayers(t, players, 3)

	var wg sync.WaitGroup
	results := make(chan *model.SubmitResult, players)
	for i := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Submit(ctx, race.ID, fmt.Sprintf("p%d", i), 1)
			if assert.NoError(t, err) {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	processed, recorded := 0, 0
	for res := range results {
		if res.LapProcessed() {
			processed++
			assert.Equal(t, 1, res.Lap.LapNumber)
			assert.Len(t, res.Lap.Performances, players)
		} else {
			recorded++
		}
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, players-1, recorded)

	got, err := f.svc.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentLap)
	assert.Len(t, got.WaitingFor(), players)
	for _, p := range got.Participants {
		require.Len(t, p.BoostHistory, 1, p.PlayerID)
		assert.Equal(t, 1, p.BoostHistory[0].BoostValue)
		assert.NotContains(t, p.BoostHand.AvailableCards(), 1)
	}
	laps, err := f.svc.Laps(ctx, race.ID)
	require.NoError(t, err)
	assert.Len(t, laps, 1)
	assert.Equal(t, []int{1}, f.pub.laps[race.ID])
}

func TestService_ConcurrentAutoSubmit(t *testing.T) {
	const callers = 5
	ctx := context.Background()
	f := newFixture(t)
	race := f.raceWithPlayers(t, 3, 2)

	var wg sync.WaitGroup
	var mutex sync.Mutex
	succeeded, rejected := 0, 0
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			players, err := f.svc.AutoSubmit(ctx, race.ID)
			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, raceerr.ErrRaceNotInProgress)
				rejected++
				return
			}
			assert.Equal(t, []string{"p0", "p1", "p2"}, players)
			succeeded++
		}()
	}
	wg.Wait()

	// every successful call resolves one lap, the race ends after two
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, callers-2, rejected)
	got, err := f.svc.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, got.Status)
	assert.Equal(t, []int{1, 2}, f.pub.laps[race.ID])
}

func TestService_SubscribeWhileRaceEnds(t *testing.T) {
	const subscribers = 10
	ctx := context.Background()
	f := newFixture(t)
	race := f.startedRace(t, 1)
	_, err := f.svc.Submit(ctx, race.ID, "a", 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range subscribers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel, err := f.svc.Subscribe(ctx, race.ID)
			if err != nil {
				assert.ErrorIs(t, err, raceerr.ErrRaceNotInProgress)
				return
			}
			defer cancel()
			// every subscription handed out must be closed when the race ends
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return
					}
				case <-time.After(5 * time.Second):
					assert.Fail(t, "channel not closed")
					return
				}
			}
		}()
	}
	_, err = f.svc.Submit(ctx, race.ID, "b", 1)
	require.NoError(t, err)
	wg.Wait()

	f.svc.feedMutex.Lock()
	defer f.svc.feedMutex.Unlock()
	assert.Empty(t, f.svc.feeds)
}

func TestService_SlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slow := f.startedRace(t, 3)
	other := f.startedRace(t, 3)

	// subscribed but never read
	_, cancel, err := f.svc.Subscribe(ctx, slow.ID)
	require.NoError(t, err)
	defer cancel()

	start := time.Now()
	for lap := 1; lap <= 2; lap++ {
		for _, id := range []string{slow.ID, other.ID} {
			_, err = f.svc.Submit(ctx, id, "a", lap)
			require.NoError(t, err)
			res, err := f.svc.Submit(ctx, id, "b", lap)
			require.NoError(t, err)
			require.True(t, res.LapProcessed())
		}
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
