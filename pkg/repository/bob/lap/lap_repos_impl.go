//nolint:whitespace // can't make both editor and linter happy
package lap

import (
	"context"
	"encoding/json"

	"github.com/gofrs/uuid/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
	bobCtx "github.com/mpapenbr/boostrace/pkg/repository/bob/context"
)

type (
	repo struct {
		conn bob.Executor
	}
	// used for the join of race_lap and race_lap_performance
	performanceRow struct {
		LapNo          int32
		Characteristic string
		PlayerID       string
		SectorIndex    int32
		SectorCeiling  int32
		BoostValue     int32
		BaseValue      int32
		CappedValue    int32
		Multiplier     decimal.Decimal
		FinalValue     int32
	}
)

var _ api.LapRepository = (*repo)(nil)

func NewLapRepository(conn bob.Executor) api.LapRepository {
	return &repo{
		conn: conn,
	}
}

// Create stores the lap result and one performance row per participant that
// submitted an action for this lap.
func (r *repo) Create(ctx context.Context, raceID string, lap *model.LapResult) error {
	id, err := uuid.FromString(raceID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(lap)
	if err != nil {
		return err
	}
	q := psql.Insert(
		im.Into("race_lap", "race_id", "lap_no", "characteristic", "data"),
		im.Values(
			psql.Arg(id),
			psql.Arg(int32(lap.LapNumber)),
			psql.Arg(lap.Characteristic.String()),
			psql.Arg(data),
		),
		im.Returning("id"),
	)
	lapID, err := bob.One(ctx, r.getExecutor(ctx), q, scan.SingleColumnMapper[int32])
	if err != nil {
		return err
	}
	if len(lap.Performances) == 0 {
		return nil
	}

	values := lo.Map(lap.Performances,
		func(p model.PerformanceBreakdown, _ int) bob.Mod[*dialect.InsertQuery] {
			return im.Values(
				psql.Arg(lapID),
				psql.Arg(p.PlayerID),
				psql.Arg(int32(p.SectorIndex)),
				psql.Arg(int32(p.SectorCeiling)),
				psql.Arg(int32(p.BoostValue)),
				psql.Arg(int32(p.BaseValue)),
				psql.Arg(int32(p.CappedBaseValue)),
				psql.Arg(decimal.NewFromFloat(p.Multiplier).Round(2)),
				psql.Arg(int32(p.FinalValue)),
			)
		})
	mods := make(bob.Mods[*dialect.InsertQuery], 0, len(values)+1)
	mods = append(mods, im.Into("race_lap_performance",
		"race_lap_id", "player_id", "sector_index", "sector_ceiling",
		"boost_value", "base_value", "capped_value", "multiplier", "final_value"))
	mods = append(mods, values...)
	_, err = bob.Exec(ctx, r.getExecutor(ctx), psql.Insert(mods...))
	return err
}

func (r *repo) LoadByRaceID(ctx context.Context, raceID string) (
	[]*model.LapResult, error,
) {
	id, err := uuid.FromString(raceID)
	if err != nil {
		return nil, err
	}
	q := psql.Select(
		sm.Columns("data"),
		sm.From("race_lap"),
		sm.Where(psql.Quote("race_id").EQ(psql.Arg(id))),
		sm.OrderBy("lap_no").Asc(),
	)
	rows, err := bob.All(ctx, r.getExecutor(ctx), q, scan.SingleColumnMapper[[]byte])
	if err != nil {
		return nil, err
	}
	ret := make([]*model.LapResult, 0, len(rows))
	for _, data := range rows {
		var item model.LapResult
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, nil
}

func (r *repo) LoadPerformances(ctx context.Context, raceID, playerID string) (
	[]model.PerformanceBreakdown, error,
) {
	id, err := uuid.FromString(raceID)
	if err != nil {
		return nil, err
	}
	q := psql.Select(
		sm.Columns(
			psql.Quote("l", "lap_no"),
			psql.Quote("l", "characteristic"),
			psql.Quote("p", "player_id"),
			psql.Quote("p", "sector_index"),
			psql.Quote("p", "sector_ceiling"),
			psql.Quote("p", "boost_value"),
			psql.Quote("p", "base_value"),
			psql.Quote("p", "capped_value"),
			psql.Quote("p", "multiplier"),
			psql.Quote("p", "final_value"),
		),
		sm.From("race_lap_performance").As("p"),
		sm.InnerJoin("race_lap").As("l").On(
			psql.Quote("l", "id").EQ(psql.Quote("p", "race_lap_id")),
		),
		sm.Where(psql.Quote("l", "race_id").EQ(psql.Arg(id))),
		sm.Where(psql.Quote("p", "player_id").EQ(psql.Arg(playerID))),
		sm.OrderBy(psql.Quote("l", "lap_no")).Asc(),
	)
	rows, err := bob.All(ctx, r.getExecutor(ctx), q, scan.StructMapper[performanceRow]())
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(row performanceRow, _ int) model.PerformanceBreakdown {
		var lc model.LapCharacteristic
		_ = lc.UnmarshalText([]byte(row.Characteristic))
		return model.PerformanceBreakdown{
			PlayerID:        row.PlayerID,
			Characteristic:  lc,
			SectorIndex:     int(row.SectorIndex),
			BaseValue:       int(row.BaseValue),
			SectorCeiling:   int(row.SectorCeiling),
			CappedBaseValue: int(row.CappedValue),
			BoostValue:      int(row.BoostValue),
			Multiplier:      row.Multiplier.InexactFloat64(),
			FinalValue:      int(row.FinalValue),
		}
	}), nil
}

// deletes all laps of a race, returns number of laps deleted.
func (r *repo) DeleteByRaceID(ctx context.Context, raceID string) (int, error) {
	id, err := uuid.FromString(raceID)
	if err != nil {
		return 0, err
	}
	q := psql.Delete(
		dm.From("race_lap"),
		dm.Where(psql.Quote("race_id").EQ(psql.Arg(id))),
	)
	res, err := bob.Exec(ctx, r.getExecutor(ctx), q)
	if err != nil {
		return 0, err
	}
	num, err := res.RowsAffected()
	return int(num), err
}

func (r *repo) getExecutor(ctx context.Context) bob.Executor {
	if executor := bobCtx.FromContext(ctx); executor != nil {
		return executor
	}
	return r.conn
}
