//nolint:whitespace // can't make both editor and linter happy
package race

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/samber/lo"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/engine"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
	bobCtx "github.com/mpapenbr/boostrace/pkg/repository/bob/context"
)

type (
	repo struct {
		conn bob.Executor
	}
)

var _ api.RaceRepository = (*repo)(nil)

func NewRaceRepository(conn bob.Executor) api.RaceRepository {
	return &repo{
		conn: conn,
	}
}

func (r *repo) Save(ctx context.Context, race *engine.Race) error {
	id, err := parseID(race.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(race)
	if err != nil {
		return err
	}
	q := psql.Insert(
		im.Into("race", "id", "track_id", "status", "current_lap", "total_laps", "data"),
		im.Values(
			psql.Arg(id),
			psql.Arg(int32(race.Track.ID)),
			psql.Arg(race.Status.String()),
			psql.Arg(int32(race.CurrentLap)),
			psql.Arg(int32(race.TotalLaps)),
			psql.Arg(data),
		),
		im.OnConflict("id").DoUpdate(
			im.SetCol("status").To(psql.Arg(race.Status.String())),
			im.SetCol("current_lap").To(psql.Arg(int32(race.CurrentLap))),
			im.SetCol("data").To(psql.Arg(data)),
			im.SetCol("update_stamp").To(psql.Arg(time.Now())),
		),
	)
	_, err = bob.Exec(ctx, r.getExecutor(ctx), q)
	return err
}

func (r *repo) LoadByID(ctx context.Context, id string) (*engine.Race, error) {
	raceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	q := psql.Select(
		sm.Columns("data"),
		sm.From("race"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(raceID))),
	)
	data, err := bob.One(ctx, r.getExecutor(ctx), q, scan.SingleColumnMapper[[]byte])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrNoRows
		}
		return nil, err
	}
	var ret engine.Race
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repo) LoadIDs(ctx context.Context, status ...model.RaceStatus) (
	[]string, error,
) {
	mods := make(bob.Mods[*dialect.SelectQuery], 0)
	mods = append(mods,
		sm.Columns("id"),
		sm.From("race"),
		sm.OrderBy("record_stamp").Asc(),
		sm.OrderBy("id").Asc(),
	)
	if len(status) > 0 {
		args := lo.Map(status, func(s model.RaceStatus, _ int) bob.Expression {
			return psql.Arg(s.String())
		})
		mods = append(mods, sm.Where(psql.Quote("status").In(args...)))
	}
	ids, err := bob.All(ctx, r.getExecutor(ctx),
		psql.Select(mods...), scan.SingleColumnMapper[uuid.UUID])
	if err != nil {
		return nil, err
	}
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() }), nil
}

// deletes an entry from the database, returns number of rows deleted.
// Laps of the race are removed by the database.
func (r *repo) DeleteByID(ctx context.Context, id string) (int, error) {
	raceID, err := parseID(id)
	if err != nil {
		return 0, err
	}
	q := psql.Delete(
		dm.From("race"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(raceID))),
	)
	res, err := bob.Exec(ctx, r.getExecutor(ctx), q)
	if err != nil {
		return 0, err
	}
	num, err := res.RowsAffected()
	return int(num), err
}

func parseID(id string) (uuid.UUID, error) {
	ret, err := uuid.FromString(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid race id %q: %w", id, err)
	}
	return ret, nil
}

func (r *repo) getExecutor(ctx context.Context) bob.Executor {
	if executor := bobCtx.FromContext(ctx); executor != nil {
		return executor
	}
	return r.conn
}
