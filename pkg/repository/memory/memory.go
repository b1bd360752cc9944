// Package memory provides repositories that keep their data in process memory.
// Every value is copied on the way in and out so callers never share state with
// the store.
//
//nolint:whitespace // can't make both editor and linter happy
package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/engine"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
)

type (
	repositories struct {
		track *trackRepo
		car   *carRepo
		race  *raceRepo
		lap   *lapRepo
	}
	trackRepo struct {
		mutex sync.RWMutex
		items map[int][]byte
	}
	carRepo struct {
		mutex sync.RWMutex
		items map[string][]byte
	}
	raceEntry struct {
		seq    int
		status model.RaceStatus
		data   []byte
	}
	raceRepo struct {
		mutex sync.RWMutex
		seq   int
		items map[string]*raceEntry
		laps  *lapRepo
	}
	lapRepo struct {
		mutex sync.RWMutex
		items map[string][][]byte
	}
	noTx struct{}
)

var (
	_ api.Repositories       = (*repositories)(nil)
	_ api.TrackRepository    = (*trackRepo)(nil)
	_ api.CarRepository      = (*carRepo)(nil)
	_ api.RaceRepository     = (*raceRepo)(nil)
	_ api.LapRepository      = (*lapRepo)(nil)
	_ api.TransactionManager = (*noTx)(nil)
)

func NewRepositories() api.Repositories {
	laps := &lapRepo{items: make(map[string][][]byte)}
	return &repositories{
		track: &trackRepo{items: make(map[int][]byte)},
		car:   &carRepo{items: make(map[string][]byte)},
		race:  &raceRepo{items: make(map[string]*raceEntry), laps: laps},
		lap:   laps,
	}
}

// NewTransactionManager returns a manager that just calls the function.
// The memory store has no rollback.
func NewTransactionManager() api.TransactionManager {
	return &noTx{}
}

func (r *repositories) Track() api.TrackRepository { return r.track }
func (r *repositories) Car() api.CarRepository     { return r.car }
func (r *repositories) Race() api.RaceRepository   { return r.race }
func (r *repositories) Lap() api.LapRepository     { return r.lap }

func (n *noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func decode[T any](data []byte) (*T, error) {
	var ret T
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *trackRepo) Create(ctx context.Context, track *model.Track) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.items[track.ID]; ok {
		return api.ErrDuplicateKey
	}
	data, err := json.Marshal(track)
	if err != nil {
		return err
	}
	r.items[track.ID] = data
	return nil
}

func (r *trackRepo) LoadByID(ctx context.Context, id int) (*model.Track, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	data, ok := r.items[id]
	if !ok {
		return nil, api.ErrNoRows
	}
	return decode[model.Track](data)
}

func (r *trackRepo) LoadAll(ctx context.Context) ([]*model.Track, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := lo.Keys(r.items)
	slices.Sort(ids)
	ret := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		t, err := decode[model.Track](r.items[id])
		if err != nil {
			return nil, err
		}
		ret = append(ret, t)
	}
	return ret, nil
}

func (r *trackRepo) EnsureTrack(ctx context.Context, track *model.Track) error {
	r.mutex.RLock()
	_, ok := r.items[track.ID]
	r.mutex.RUnlock()
	if ok {
		return nil
	}
	return r.Create(ctx, track)
}

func (r *trackRepo) DeleteByID(ctx context.Context, id int) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.items[id]; !ok {
		return 0, nil
	}
	delete(r.items, id)
	return 1, nil
}

func (r *carRepo) Upsert(ctx context.Context, car *model.ValidatedCarData) error {
	data, err := json.Marshal(car)
	if err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.items[car.Car.ID] = data
	return nil
}

func (r *carRepo) LoadByID(ctx context.Context, id string) (
	*model.ValidatedCarData, error,
) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	data, ok := r.items[id]
	if !ok {
		return nil, api.ErrNoRows
	}
	return decode[model.ValidatedCarData](data)
}

func (r *carRepo) DeleteByID(ctx context.Context, id string) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.items[id]; !ok {
		return 0, nil
	}
	delete(r.items, id)
	return 1, nil
}

func (r *raceRepo) Save(ctx context.Context, race *engine.Race) error {
	data, err := json.Marshal(race)
	if err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if e, ok := r.items[race.ID]; ok {
		e.status = race.Status
		e.data = data
		return nil
	}
	r.seq++
	r.items[race.ID] = &raceEntry{seq: r.seq, status: race.Status, data: data}
	return nil
}

func (r *raceRepo) LoadByID(ctx context.Context, id string) (*engine.Race, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	e, ok := r.items[id]
	if !ok {
		return nil, api.ErrNoRows
	}
	return decode[engine.Race](e.data)
}

func (r *raceRepo) LoadIDs(ctx context.Context, status ...model.RaceStatus) (
	[]string, error,
) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := lo.Filter(lo.Keys(r.items), func(id string, _ int) bool {
		return len(status) == 0 || slices.Contains(status, r.items[id].status)
	})
	slices.SortFunc(ids, func(a, b string) int {
		return r.items[a].seq - r.items[b].seq
	})
	return ids, nil
}

func (r *raceRepo) DeleteByID(ctx context.Context, id string) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.items[id]; !ok {
		return 0, nil
	}
	delete(r.items, id)
	_, _ = r.laps.DeleteByRaceID(ctx, id)
	return 1, nil
}

func (r *lapRepo) Create(ctx context.Context, raceID string, lap *model.LapResult) error {
	data, err := json.Marshal(lap)
	if err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.items[raceID] = append(r.items[raceID], data)
	return nil
}

func (r *lapRepo) LoadByRaceID(ctx context.Context, raceID string) (
	[]*model.LapResult, error,
) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ret := make([]*model.LapResult, 0, len(r.items[raceID]))
	for _, data := range r.items[raceID] {
		l, err := decode[model.LapResult](data)
		if err != nil {
			return nil, err
		}
		ret = append(ret, l)
	}
	return ret, nil
}

func (r *lapRepo) LoadPerformances(ctx context.Context, raceID, playerID string) (
	[]model.PerformanceBreakdown, error,
) {
	laps, err := r.LoadByRaceID(ctx, raceID)
	if err != nil {
		return nil, err
	}
	ret := make([]model.PerformanceBreakdown, 0, len(laps))
	for _, l := range laps {
		if p, ok := lo.Find(l.Performances, func(p model.PerformanceBreakdown) bool {
			return p.PlayerID == playerID
		}); ok {
			ret = append(ret, p)
		}
	}
	return ret, nil
}

func (r *lapRepo) DeleteByRaceID(ctx context.Context, raceID string) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	num := len(r.items[raceID])
	delete(r.items, raceID)
	return num, nil
}
