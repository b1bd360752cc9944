//nolint:whitespace // can't make both editor and linter happy
package track

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
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
	trackRow struct {
		ID      int32
		Name    string
		Sectors []byte
	}
)

var _ api.TrackRepository = (*repo)(nil)

func NewTrackRepository(conn bob.Executor) api.TrackRepository {
	return &repo{
		conn: conn,
	}
}

func (r *repo) Create(ctx context.Context, track *model.Track) error {
	sectors, err := json.Marshal(track.Sectors)
	if err != nil {
		return err
	}
	q := psql.Insert(
		im.Into("track", "id", "name", "sectors"),
		im.Values(psql.Arg(int32(track.ID)), psql.Arg(track.Name), psql.Arg(sectors)),
	)
	_, err = bob.Exec(ctx, r.getExecutor(ctx), q)
	return err
}

func (r *repo) LoadByID(ctx context.Context, id int) (*model.Track, error) {
	q := psql.Select(
		sm.Columns("id", "name", "sectors"),
		sm.From("track"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(int32(id)))),
	)
	row, err := bob.One(ctx, r.getExecutor(ctx), q, scan.StructMapper[trackRow]())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrNoRows
		}
		return nil, err
	}
	return toTrack(&row)
}

func (r *repo) LoadAll(ctx context.Context) ([]*model.Track, error) {
	q := psql.Select(
		sm.Columns("id", "name", "sectors"),
		sm.From("track"),
		sm.OrderBy("id").Asc(),
	)
	rows, err := bob.All(ctx, r.getExecutor(ctx), q, scan.StructMapper[trackRow]())
	if err != nil {
		return nil, err
	}
	ret := make([]*model.Track, 0, len(rows))
	for i := range rows {
		item, err := toTrack(&rows[i])
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, nil
}

func (r *repo) EnsureTrack(ctx context.Context, track *model.Track) error {
	_, err := r.LoadByID(ctx, track.ID)
	if errors.Is(err, api.ErrNoRows) {
		return r.Create(ctx, track)
	}
	return err
}

// deletes an entry from the database, returns number of rows deleted.
func (r *repo) DeleteByID(ctx context.Context, id int) (int, error) {
	q := psql.Delete(
		dm.From("track"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(int32(id)))),
	)
	res, err := bob.Exec(ctx, r.getExecutor(ctx), q)
	if err != nil {
		return 0, err
	}
	num, err := res.RowsAffected()
	return int(num), err
}

func toTrack(row *trackRow) (*model.Track, error) {
	var sectors []model.Sector
	if err := json.Unmarshal(row.Sectors, &sectors); err != nil {
		return nil, err
	}
	return model.NewTrack(int(row.ID), row.Name, sectors)
}

func (r *repo) getExecutor(ctx context.Context) bob.Executor {
	if executor := bobCtx.FromContext(ctx); executor != nil {
		return executor
	}
	return r.conn
}
