// Package race manages running races. Every race is mutated by one writer at a
// time: the service loads the aggregate, applies the operation and stores the
// result (together with resolved laps) in one transaction. A failed operation
// never reaches the repository.
package race

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/publish"
	"github.com/mpapenbr/boostrace/pkg/race/engine"
	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
	"github.com/mpapenbr/boostrace/pkg/race/random"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
	"github.com/mpapenbr/boostrace/pkg/repository/memory"
	"github.com/mpapenbr/boostrace/pkg/utils/broadcast"
	"github.com/mpapenbr/boostrace/pkg/utils/cache"
	"github.com/mpapenbr/boostrace/pkg/utils/cache/loadercache"
)

var ErrUnknownCar = errors.New("unknown car")

// number of laps a feed buffers while its subscribers are busy
const lapFeedBuffer = 16

type (
	Option        func(*Service)
	SourceFactory func(raceID string) random.Source
	mutator       func(ctx context.Context, race *engine.Race) ([]*model.LapResult, error)

	lapFeed struct {
		source chan *model.LapResult
		server broadcast.BroadcastServer[*model.LapResult]
	}

	Service struct {
		repos      api.Repositories
		txMgr      api.TransactionManager
		publisher  publish.Publisher
		tracks     cache.Cache[int, model.Track]
		cars       cache.Cache[string, model.ValidatedCarData]
		cacheTTL   time.Duration
		lookup     *Lookup
		sources    SourceFactory
		lapTimeout time.Duration
		clock      func() time.Time
		log        *log.Logger
		tracer     trace.Tracer
		metrics    *metrics

		feedMutex sync.Mutex
		feeds     map[string]*lapFeed
	}
)

func WithRepositories(repos api.Repositories, txMgr api.TransactionManager) Option {
	return func(s *Service) {
		s.repos = repos
		s.txMgr = txMgr
	}
}

func WithPublisher(p publish.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithSourceFactory sets how random sources are created for a race. The factory
// is called on race creation and whenever a race is loaded from the repository.
func WithSourceFactory(f SourceFactory) Option {
	return func(s *Service) {
		s.sources = f
	}
}

// WithLapTimeout enables auto submissions for laps that are pending longer than d.
// 0 disables the watchdog.
func WithLapTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.lapTimeout = d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		s.cacheTTL = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New creates the service. Without repositories the data is kept in memory.
func New(opts ...Option) *Service {
	ret := &Service{
		publisher: publish.Noop(),
		cacheTTL:  5 * time.Minute,
		lookup:    NewLookup(),
		clock:     time.Now,
		log:       log.Default().Named("race.service"),
		sources: func(string) random.Source {
			return random.New(rand.Uint64())
		},
		feeds: make(map[string]*lapFeed),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.repos == nil {
		ret.repos = memory.NewRepositories()
		ret.txMgr = memory.NewTransactionManager()
	}
	if ret.txMgr == nil {
		ret.txMgr = memory.NewTransactionManager()
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("brace")
	}
	ret.metrics = newMetrics(ret.log)
	ret.tracks = loadercache.New(
		loadercache.WithExpiration[int, model.Track](ret.cacheTTL),
		loadercache.WithLogger[int, model.Track](ret.log.Named("tracks")),
		loadercache.WithLoader(func(ctx context.Context, id int) (*model.Track, error) {
			return ret.repos.Track().LoadByID(ctx, id)
		}),
	)
	ret.cars = loadercache.New(
		loadercache.WithExpiration[string, model.ValidatedCarData](ret.cacheTTL),
		loadercache.WithLogger[string, model.ValidatedCarData](ret.log.Named("cars")),
		loadercache.WithLoader(
			func(ctx context.Context, id string) (*model.ValidatedCarData, error) {
				return ret.repos.Car().LoadByID(ctx, id)
			}),
	)
	return ret
}

func (s *Service) Repositories() api.Repositories {
	return s.repos
}

// RegisterCar stores validated car data. Cars have to be registered before a
// participant can join with them.
func (s *Service) RegisterCar(ctx context.Context, car *model.ValidatedCarData) error {
	if err := s.repos.Car().Upsert(ctx, car); err != nil {
		return err
	}
	s.cars.Invalidate(ctx, car.Car.ID)
	return nil
}

// CreateRace creates a waiting race on a stored track.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Service) CreateRace(
	ctx context.Context,
	trackID, totalLaps int,
) (*engine.Race, error) {
	track, err := s.tracks.Get(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("track %d: %w", trackID, err)
	}
	// the race gets its own copy of the cached track
	own, err := model.NewTrack(track.ID, track.Name, track.Sectors)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	race, err := engine.New(own, totalLaps,
		engine.WithID(id.String()),
		engine.WithRandomSource(s.sources(id.String())))
	if err != nil {
		return nil, err
	}
	if err := s.txMgr.RunInTx(ctx, func(ctx context.Context) error {
		return s.repos.Race().Save(ctx, race)
	}); err != nil {
		return nil, err
	}
	e := s.lookup.get(race.ID)
	e.mutex.Lock()
	e.race = race
	e.mutex.Unlock()
	s.log.Info("race created",
		log.String("race", race.ID),
		log.String("track", own.Name),
		log.Int("laps", totalLaps))
	return s.Get(ctx, race.ID)
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Service) Join(
	ctx context.Context,
	raceID, playerID, carID, pilotID string,
) (*model.Participant, error) {
	if _, err := s.cars.Get(ctx, carID); err != nil {
		if errors.Is(err, api.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCar, carID)
		}
		return nil, err
	}
	var ret model.Participant
	err := s.execute(ctx, raceID,
		func(ctx context.Context, race *engine.Race) ([]*model.LapResult, error) {
			p, err := race.AddParticipant(playerID, carID, pilotID)
			if err != nil {
				return nil, err
			}
			ret = *p
			hand := *p.BoostHand
			ret.BoostHand = &hand
			return nil, nil
		})
	if err != nil {
		return nil, err
	}
	s.log.Debug("player joined",
		log.String("race", raceID),
		log.String("player", playerID),
		log.Int("sector", ret.SectorIndex))
	return &ret, nil
}

func (s *Service) Start(ctx context.Context, raceID string) error {
	return s.execute(ctx, raceID,
		func(ctx context.Context, race *engine.Race) ([]*model.LapResult, error) {
			return nil, race.Start()
		})
}

func (s *Service) Cancel(ctx context.Context, raceID string) error {
	return s.execute(ctx, raceID,
		func(ctx context.Context, race *engine.Race) ([]*model.LapResult, error) {
			return nil, race.Cancel()
		})
}

// Submit records the boost choice of a player. The result carries the lap result
// if this submission completed the lap.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Service) Submit(
	ctx context.Context,
	raceID, playerID string,
	boostValue int,
) (*model.SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "race.submit",
		trace.WithAttributes(
			attribute.String("race.id", raceID),
			attribute.String("player.id", playerID),
			attribute.Int("boost", boostValue)))
	defer span.End()

	var ret *model.SubmitResult
	err := s.execute(ctx, raceID,
		func(ctx context.Context, race *engine.Race) ([]*model.LapResult, error) {
			var err error
			if ret, err = s.submit(ctx, race, playerID, boostValue); err != nil {
				return nil, err
			}
			if ret.LapProcessed() {
				return []*model.LapResult{ret.Lap}, nil
			}
			return nil, nil
		})
	s.metrics.recordSubmit(ctx, err, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return ret, nil
}

// AutoSubmit submits the lowest available card for every player the current lap
// is waiting for. It returns the players that got an automatic submission.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Service) AutoSubmit(ctx context.Context, raceID string) (
	submitted []string, err error,
) {
	ctx, span := s.tracer.Start(ctx, "race.autosubmit",
		trace.WithAttributes(attribute.String("race.id", raceID)))
	defer span.End()

	err = s.execute(ctx, raceID,
		func(ctx context.Context, race *engine.Race) ([]*model.LapResult, error) {
			if race.Status != model.StatusInProgress {
				return nil, raceerr.New(raceerr.KindRaceNotInProgress, "", race.Status)
			}
			var laps []*model.LapResult
			for _, playerID := range race.WaitingFor() {
				card := race.Participant(playerID).BoostHand.LowestAvailable()
				res, err := s.submit(ctx, race, playerID, card)
				if err != nil {
					return nil, err
				}
				submitted = append(submitted, playerID)
				if res.LapProcessed() {
					laps = append(laps, res.Lap)
				}
			}
			return laps, nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for range submitted {
		s.metrics.recordSubmit(ctx, nil, true)
	}
	return submitted, nil
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Service) submit(
	ctx context.Context,
	race *engine.Race,
	playerID string,
	boostValue int,
) (*model.SubmitResult, error) {
	var car *model.ValidatedCarData
	if p := race.Participant(playerID); p != nil && !p.Finished {
		var err error
		if car, err = s.cars.Get(ctx, p.CarID); err != nil {
			return nil, fmt.Errorf("car %s: %w", p.CarID, err)
		}
	}
	return race.SubmitAction(playerID, boostValue, car)
}

// Get returns a copy of the stored race.
func (s *Service) Get(ctx context.Context, raceID string) (*engine.Race, error) {
	return s.repos.Race().LoadByID(ctx, raceID)
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Service) Standings(ctx context.Context, raceID string) (
	[]model.Standing, error,
) {
	race, err := s.Get(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return race.Standings(), nil
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Service) Laps(ctx context.Context, raceID string) (
	[]*model.LapResult, error,
) {
	return s.repos.Lap().LoadByRaceID(ctx, raceID)
}

// Subscribe delivers the lap results of a running race. The channel is closed
// when the race is finished or cancelled or when the returned cancel func is
// called.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Service) Subscribe(ctx context.Context, raceID string) (
	<-chan *model.LapResult, func(), error,
) {
	// the race lock keeps the race from ending before the feed exists
	e := s.lookup.get(raceID)
	e.mutex.Lock()
	defer e.mutex.Unlock()
	race, err := s.Get(ctx, raceID)
	if err != nil {
		if errors.Is(err, api.ErrNoRows) {
			s.lookup.remove(raceID)
		}
		return nil, nil, err
	}
	if race.Status.Terminal() {
		s.lookup.remove(raceID)
		return nil, nil, raceerr.New(raceerr.KindRaceNotInProgress, "", race.Status)
	}
	feed := s.feed(raceID)
	ch := feed.server.Subscribe()
	return ch, func() { feed.server.CancelSubscription(ch) }, nil
}

// feed returns the lap feed of the race, creating it if needed.
func (s *Service) feed(raceID string) *lapFeed {
	s.feedMutex.Lock()
	defer s.feedMutex.Unlock()
	if feed, ok := s.feeds[raceID]; ok {
		return feed
	}
	src := make(chan *model.LapResult, lapFeedBuffer)
	feed := &lapFeed{
		source: src,
		server: broadcast.NewBroadcastServer(raceID, "laps", (<-chan *model.LapResult)(src),
			broadcast.WithSendTimeout[*model.LapResult](time.Second),
			broadcast.WithLogger[*model.LapResult](s.log.Named("broadcast"))),
	}
	s.feeds[raceID] = feed
	return feed
}

// execute runs fn on the race while holding the race lock. The race and the
// returned laps are stored in one transaction. On error the cached race is
// dropped so the next call starts from the stored state.
func (s *Service) execute(ctx context.Context, raceID string, fn mutator) error {
	e := s.lookup.get(raceID)
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.race == nil {
		race, err := s.repos.Race().LoadByID(ctx, raceID)
		if err != nil {
			if errors.Is(err, api.ErrNoRows) {
				s.lookup.remove(raceID)
			}
			return err
		}
		race.SetRandomSource(s.sources(raceID))
		e.race = race
	}
	if e.lapStarted.IsZero() {
		e.lapStarted = s.clock()
	}
	statusBefore := e.race.Status
	var laps []*model.LapResult
	err := s.txMgr.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if laps, err = fn(ctx, e.race); err != nil {
			return err
		}
		if err = s.repos.Race().Save(ctx, e.race); err != nil {
			return err
		}
		for _, lap := range laps {
			if err = s.repos.Lap().Create(ctx, raceID, lap); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.race = nil
		return err
	}
	if len(laps) > 0 || statusBefore != e.race.Status {
		e.lapStarted = s.clock()
	}
	s.notify(ctx, e.race, laps)
	if e.race.Status.Terminal() {
		s.lookup.remove(raceID)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, race *engine.Race, laps []*model.LapResult) {
	for _, lap := range laps {
		s.metrics.laps.Add(ctx, 1)
		if err := s.publisher.PublishLap(ctx, race.ID, lap); err != nil {
			s.log.Warn("error publishing lap",
				log.String("race", race.ID), log.ErrorField(err))
		}
		s.feedLap(race.ID, lap)
	}
	switch race.Status {
	case model.StatusFinished:
		s.metrics.finished.Add(ctx, 1)
		if err := s.publisher.PublishFinished(ctx, race.ID, race.Standings()); err != nil {
			s.log.Warn("error publishing standings",
				log.String("race", race.ID), log.ErrorField(err))
		}
		s.log.Info("race finished", log.String("race", race.ID))
		s.closeFeed(race.ID)
	case model.StatusCancelled:
		s.log.Info("race cancelled", log.String("race", race.ID))
		s.closeFeed(race.ID)
	case model.StatusWaiting, model.StatusInProgress:
	}
}

// feedLap hands the lap to the broadcast of the race. The caller holds the race
// lock, so the feed cannot be closed meanwhile. Laps are dropped if the feed is
// full.
func (s *Service) feedLap(raceID string, lap *model.LapResult) {
	s.feedMutex.Lock()
	feed, ok := s.feeds[raceID]
	s.feedMutex.Unlock()
	if !ok {
		return
	}
	select {
	case feed.source <- lap:
	default:
		s.log.Warn("lap feed full, dropping lap",
			log.String("race", raceID), log.Int("lap", lap.LapNumber))
	}
}

func (s *Service) closeFeed(raceID string) {
	s.feedMutex.Lock()
	defer s.feedMutex.Unlock()
	if feed, ok := s.feeds[raceID]; ok {
		close(feed.source)
		delete(s.feeds, raceID)
	}
}

// Close releases all lap feeds.
func (s *Service) Close() {
	s.feedMutex.Lock()
	defer s.feedMutex.Unlock()
	for id, feed := range s.feeds {
		feed.server.Close()
		delete(s.feeds, id)
	}
}
