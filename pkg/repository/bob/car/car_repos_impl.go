//nolint:whitespace // can't make both editor and linter happy
package car

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
)

var _ api.CarRepository = (*repo)(nil)

func NewCarRepository(conn bob.Executor) api.CarRepository {
	return &repo{
		conn: conn,
	}
}

func (r *repo) Upsert(ctx context.Context, car *model.ValidatedCarData) error {
	data, err := json.Marshal(car)
	if err != nil {
		return err
	}
	q := psql.Insert(
		im.Into("car", "id", "name", "data"),
		im.Values(psql.Arg(car.Car.ID), psql.Arg(car.Car.Name), psql.Arg(data)),
		im.OnConflict("id").DoUpdate(
			im.SetCol("name").To(psql.Arg(car.Car.Name)),
			im.SetCol("data").To(psql.Arg(data)),
		),
	)
	_, err = bob.Exec(ctx, r.getExecutor(ctx), q)
	return err
}

func (r *repo) LoadByID(ctx context.Context, id string) (*model.ValidatedCarData, error) {
	q := psql.Select(
		sm.Columns("data"),
		sm.From("car"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)
	data, err := bob.One(ctx, r.getExecutor(ctx), q, scan.SingleColumnMapper[[]byte])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrNoRows
		}
		return nil, err
	}
	var ret model.ValidatedCarData
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// deletes an entry from the database, returns number of rows deleted.
func (r *repo) DeleteByID(ctx context.Context, id string) (int, error) {
	q := psql.Delete(
		dm.From("car"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(id))),
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
