package bob

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stephenafamo/bob"

	"github.com/mpapenbr/boostrace/pkg/repository/api"
	"github.com/mpapenbr/boostrace/pkg/repository/bob/car"
	"github.com/mpapenbr/boostrace/pkg/repository/bob/lap"
	"github.com/mpapenbr/boostrace/pkg/repository/bob/race"
	"github.com/mpapenbr/boostrace/pkg/repository/bob/track"
)

type bobRepositories struct {
	trackRepository api.TrackRepository
	carRepository   api.CarRepository
	raceRepository  api.RaceRepository
	lapRepository   api.LapRepository
}

var _ api.Repositories = (*bobRepositories)(nil)

func NewRepositoriesFromPool(pool *pgxpool.Pool) api.Repositories {
	db := bob.NewDB(stdlib.OpenDBFromPool(pool))
	return NewRepositories(db)
}

func NewRepositories(db bob.DB) api.Repositories {
	return &bobRepositories{
		trackRepository: track.NewTrackRepository(db),
		carRepository:   car.NewCarRepository(db),
		raceRepository:  race.NewRaceRepository(db),
		lapRepository:   lap.NewLapRepository(db),
	}
}

func (r *bobRepositories) Track() api.TrackRepository {
	return r.trackRepository
}

func (r *bobRepositories) Car() api.CarRepository {
	return r.carRepository
}

func (r *bobRepositories) Race() api.RaceRepository {
	return r.raceRepository
}

func (r *bobRepositories) Lap() api.LapRepository {
	return r.lapRepository
}
