//nolint:funlen //ok for this test code
package lap

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stephenafamo/bob"
	"gotest.tools/v3/assert"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/engine"
	raceRepo "github.com/mpapenbr/boostrace/pkg/repository/bob/race"
	"github.com/mpapenbr/boostrace/testsupport/racedata"
	"github.com/mpapenbr/boostrace/testsupport/testdb"
)

func sampleLap(lapNo int, boostA, finalA int) *model.LapResult {
	return &model.LapResult{
		LapNumber:      lapNo,
		Characteristic: model.Curve,
		SectorPositions: []model.SectorPosition{
			{SectorIndex: 0, Players: []string{"a", "b"}},
		},
		Movements: []model.Movement{
			{PlayerID: "a", FromSector: 0, ToSector: 0, Kind: model.StayedInSector},
			{PlayerID: "b", FromSector: 0, ToSector: 0, Kind: model.StayedInSector},
		},
		Performances: []model.PerformanceBreakdown{
			{
				PlayerID: "a", Characteristic: model.Curve, SectorIndex: 0,
				BaseValue: 9, SectorCeiling: 10, CappedBaseValue: 9,
				BoostValue: boostA, Multiplier: 1.16, FinalValue: finalA,
			},
			{
				PlayerID: "b", Characteristic: model.Curve, SectorIndex: 0,
				BaseValue: 5, SectorCeiling: 10, CappedBaseValue: 5,
				BoostValue: 0, Multiplier: 1, FinalValue: 5,
			},
		},
	}
}

func TestCreateAndLoad(t *testing.T) {
	pool := testdb.InitTestDB()
	db := bob.NewDB(stdlib.OpenDBFromPool(pool))
	r := NewLapRepository(db)
	ctx := context.Background()

	race, err := engine.New(racedata.ScenarioTrack(), 3,
		engine.WithID(uuid.Must(uuid.NewV4()).String()))
	assert.NilError(t, err)
	assert.NilError(t, raceRepo.NewRaceRepository(db).Save(ctx, race))

	lap1 := sampleLap(1, 2, 10)
	lap2 := sampleLap(2, 2, 10)
	assert.NilError(t, r.Create(ctx, race.ID, lap1))
	assert.NilError(t, r.Create(ctx, race.ID, lap2))
	// duplicate lap number
	assert.Assert(t, r.Create(ctx, race.ID, lap1) != nil)

	laps, err := r.LoadByRaceID(ctx, race.ID)
	assert.NilError(t, err)
	assert.DeepEqual(t, laps, []*model.LapResult{lap1, lap2})

	perf, err := r.LoadPerformances(ctx, race.ID, "a")
	assert.NilError(t, err)
	assert.DeepEqual(t, perf, []model.PerformanceBreakdown{
		lap1.Performances[0], lap2.Performances[0],
	})

	num, err := r.DeleteByRaceID(ctx, race.ID)
	assert.NilError(t, err)
	assert.Equal(t, num, 2)
	perf, err = r.LoadPerformances(ctx, race.ID, "a")
	assert.NilError(t, err)
	assert.Equal(t, len(perf), 0)
}
