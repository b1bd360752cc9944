package api

import (
	"context"
	"errors"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/engine"
)

var (
	ErrNoRows       = errors.New("no rows in result set")
	ErrDuplicateKey = errors.New("duplicate key")
)

type Repositories interface {
	Track() TrackRepository
	Car() CarRepository
	Race() RaceRepository
	Lap() LapRepository
}

type TrackRepository interface {
	Create(ctx context.Context, track *model.Track) error
	LoadByID(ctx context.Context, id int) (*model.Track, error)
	LoadAll(ctx context.Context) ([]*model.Track, error)
	// EnsureTrack creates the track unless a track with the same id exists.
	EnsureTrack(ctx context.Context, track *model.Track) error
	DeleteByID(ctx context.Context, id int) (int, error)
}

// CarRepository stores validated car data. Ownership and completeness checks are
// done before data is put here.
type CarRepository interface {
	Upsert(ctx context.Context, car *model.ValidatedCarData) error
	LoadByID(ctx context.Context, id string) (*model.ValidatedCarData, error)
	DeleteByID(ctx context.Context, id string) (int, error)
}

// RaceRepository stores the race aggregate as a whole.
type RaceRepository interface {
	// Save inserts or replaces the race.
	Save(ctx context.Context, race *engine.Race) error
	LoadByID(ctx context.Context, id string) (*engine.Race, error)
	// LoadIDs returns the ids of races in one of the given states (all races if
	// none given), oldest first.
	LoadIDs(ctx context.Context, status ...model.RaceStatus) ([]string, error)
	DeleteByID(ctx context.Context, id string) (int, error)
}

// LapRepository keeps the history of resolved laps.
type LapRepository interface {
	Create(ctx context.Context, raceID string, lap *model.LapResult) error
	LoadByRaceID(ctx context.Context, raceID string) ([]*model.LapResult, error)
	// LoadPerformances returns the performance breakdowns of a player ordered by lap.
	LoadPerformances(ctx context.Context, raceID, playerID string) (
		[]model.PerformanceBreakdown, error,
	)
	DeleteByRaceID(ctx context.Context, raceID string) (int, error)
}

type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
