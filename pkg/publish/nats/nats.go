// Package nats publishes lap results as json messages.
//
// Subjects:
//
//	<prefix>.race.<raceID>.lap       one message per resolved lap
//	<prefix>.race.<raceID>.finished  final standings
//
// If a standings bucket is configured the latest standings of every race are
// also kept in a JetStream key value store keyed by race id.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/publish"
)

type (
	Option    func(*Publisher)
	Publisher struct {
		conn   *nats.Conn
		kv     jetstream.KeyValue
		bucket string
		prefix string
		l      *log.Logger
	}
	// FinishedMessage is sent once a race is finished.
	FinishedMessage struct {
		RaceID    string           `json:"raceId"`
		Standings []model.Standing `json:"standings"`
	}
)

var _ publish.Publisher = (*Publisher)(nil)

const DefaultPrefix = "brace"

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		p.l = l
	}
}

func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

// WithStandingsBucket enables storing the standings in a JetStream kv bucket.
func WithStandingsBucket(bucket string) Option {
	return func(p *Publisher) {
		p.bucket = bucket
	}
}

func New(ctx context.Context, conn *nats.Conn, opts ...Option) (*Publisher, error) {
	ret := &Publisher{
		conn:   conn,
		prefix: DefaultPrefix,
		l:      log.Default().Named("nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.bucket != "" {
		js, err := jetstream.New(conn)
		if err != nil {
			return nil, err
		}
		ret.kv, err = js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket: ret.bucket,
		})
		if err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func LapSubject(prefix, raceID string) string {
	return fmt.Sprintf("%s.race.%s.lap", prefix, raceID)
}

func FinishedSubject(prefix, raceID string) string {
	return fmt.Sprintf("%s.race.%s.finished", prefix, raceID)
}

func (p *Publisher) PublishLap(ctx context.Context, raceID string, lap *model.LapResult) error {
	data, err := json.Marshal(lap)
	if err != nil {
		return err
	}
	subject := LapSubject(p.prefix, raceID)
	p.l.Debug("publish lap",
		log.String("subject", subject), log.Int("lap", lap.LapNumber))
	return p.conn.Publish(subject, data)
}

//nolint:whitespace // can't make both editor and linter happy
func (p *Publisher) PublishFinished(
	ctx context.Context,
	raceID string,
	standings []model.Standing,
) error {
	data, err := json.Marshal(FinishedMessage{RaceID: raceID, Standings: standings})
	if err != nil {
		return err
	}
	if p.kv != nil {
		var rev uint64
		if rev, err = p.kv.Put(ctx, raceID, data); err != nil {
			p.l.Error("error writing standings", log.ErrorField(err))
		} else {
			p.l.Debug("standings written", log.Uint64("rev", rev))
		}
	}
	return p.conn.Publish(FinishedSubject(p.prefix, raceID), data)
}

// LoadStandings reads the standings of a finished race from the kv bucket.
func (p *Publisher) LoadStandings(ctx context.Context, raceID string) (
	*FinishedMessage, error,
) {
	if p.kv == nil {
		return nil, fmt.Errorf("no standings bucket configured")
	}
	kve, err := p.kv.Get(ctx, raceID)
	if err != nil {
		return nil, err
	}
	var ret FinishedMessage
	if err := json.Unmarshal(kve.Value(), &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// SubscribeLaps delivers the laps of a race until ctx is done. The channel is
// closed afterwards.
//
//nolint:whitespace // can't make both editor and linter happy
func SubscribeLaps(
	ctx context.Context,
	conn *nats.Conn,
	prefix, raceID string,
) (<-chan *model.LapResult, error) {
	l := log.Default().Named("nats")
	ret := make(chan *model.LapResult, 16)
	var mutex sync.Mutex
	closed := false
	sub, err := conn.Subscribe(LapSubject(prefix, raceID), func(msg *nats.Msg) {
		var lap model.LapResult
		if err := json.Unmarshal(msg.Data, &lap); err != nil {
			l.Warn("skipping invalid lap message", log.ErrorField(err))
			return
		}
		mutex.Lock()
		defer mutex.Unlock()
		if closed {
			return
		}
		select {
		case ret <- &lap:
		default:
			l.Warn("lap dropped, receiver too slow", log.Int("lap", lap.LapNumber))
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			l.Warn("error unsubscribing", log.ErrorField(err))
		}
		mutex.Lock()
		closed = true
		close(ret)
		mutex.Unlock()
	}()
	return ret, nil
}
