package race

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/testsupport/racedata"
)

func TestSweep_Disabled(t *testing.T) {
	f := newFixture(t)
	f.startedRace(t, 3)
	f.clock.Advance(time.Hour)

	num, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, num)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLapTimeout(time.Minute))
	race := f.startedRace(t, 3)
	// waiting races are never swept
	waiting, err := f.svc.CreateRace(ctx, racedata.Oval().ID, 3)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, race.ID, "a", 2)
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	num, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, num)

	f.clock.Advance(30 * time.Second)
	num, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, num)

	got, err := f.svc.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentLap)
	assert.Equal(t, 0, got.Participant("b").BoostHistory[0].BoostValue)

	other, err := f.svc.Get(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, other.Status)

	// the resolved lap restarted the timer
	num, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, num)
}

func TestSweep_UnseenRaceStartsTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLapTimeout(time.Minute))
	race := f.startedRace(t, 3)

	// a new process knows nothing about lap starts
	other := New(
		WithRepositories(f.repos, nil),
		WithSourceFactory(scripted),
		WithClock(f.clock.Now),
		WithLapTimeout(time.Minute))
	defer other.Close()

	f.clock.Advance(time.Hour)
	num, err := other.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, num)

	f.clock.Advance(time.Minute)
	num, err = other.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, num)

	got, err := other.Get(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentLap)
}

func TestRunWatchdog_StopsOnCancel(t *testing.T) {
	f := newFixture(t, WithLapTimeout(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunWatchdog(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop")
	}
}
