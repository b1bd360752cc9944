// Package broadcast fans out the messages of a source channel to any number of
// subscribers. Slow subscribers miss messages instead of blocking the source.
package broadcast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/boostrace/log"
)

type BroadcastServer[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type broadcastServer[T any] struct {
	name           string
	topic          string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	sendTimeout    time.Duration
	l              *log.Logger
	mutex          sync.Mutex
	numRcv         int64
	numSnd         int64
	numSkip        int64
	reg            metric.Registration
}

type Option[T any] func(*broadcastServer[T])

// WithSendTimeout sets how long a message waits for a single listener.
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(b *broadcastServer[T]) {
		b.sendTimeout = d
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(b *broadcastServer[T]) {
		b.l = l
	}
}

//nolint:whitespace // can't make both editor and linter happy
func NewBroadcastServer[T any](
	topic, name string,
	source <-chan T,
	opts ...Option[T],
) BroadcastServer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broadcastServer[T]{
		topic:          topic,
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		sendTimeout:    50 * time.Millisecond,
		l:              log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupMetrics()
	go b.serve()
	return b
}

func (b *broadcastServer[T]) Subscribe() <-chan T {
	ch := make(chan T)
	select {
	case b.addListener <- ch:
	case <-b.ctx.Done():
		close(ch)
	}
	return ch
}

func (b *broadcastServer[T]) CancelSubscription(ch <-chan T) {
	select {
	case b.removeListener <- ch:
	case <-b.ctx.Done():
	}
}

func (b *broadcastServer[T]) Close() {
	b.mutex.Lock()
	b.l.Debug("closing broadcast server",
		log.String("name", b.name),
		log.String("topic", b.topic),
		log.Int("rcv", int(b.numRcv)),
		log.Int("snd", int(b.numSnd)),
		log.Int("skip", int(b.numSkip)))
	b.mutex.Unlock()
	if b.reg != nil {
		if err := b.reg.Unregister(); err != nil {
			b.l.Warn("failed to unregister metrics", log.ErrorField(err))
		}
	}
	b.cancel()
}

func (b *broadcastServer[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("brace.broadcast")
	rcv, errRcv := meter.Int64ObservableCounter("brace.broadcast.rcv",
		metric.WithDescription("Number of received messages"),
		metric.WithUnit("{count}"))
	snd, errSnd := meter.Int64ObservableCounter("brace.broadcast.snd",
		metric.WithDescription("Number of sent messages"),
		metric.WithUnit("{count}"))
	skip, errSkip := meter.Int64ObservableCounter("brace.broadcast.skip",
		metric.WithDescription("Number of skipped messages"),
		metric.WithUnit("{count}"))
	listener, errListener := meter.Int64ObservableGauge("brace.broadcast.listener",
		metric.WithDescription("Number of listeners"),
		metric.WithUnit("{count}"))
	for _, err := range []error{errRcv, errSnd, errSkip, errListener} {
		if err != nil {
			b.l.Error("failed to create metric", log.ErrorField(err))
			return
		}
	}
	attrs := metric.WithAttributes(
		attribute.String("name", b.name),
		attribute.String("topic", b.topic),
	)
	reg, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			b.mutex.Lock()
			defer b.mutex.Unlock()
			o.ObserveInt64(rcv, b.numRcv, attrs)
			o.ObserveInt64(snd, b.numSnd, attrs)
			o.ObserveInt64(skip, b.numSkip, attrs)
			o.ObserveInt64(listener, int64(len(b.listeners)), attrs)
			return nil
		}, rcv, snd, skip, listener)
	if err != nil {
		b.l.Error("failed to register metrics callback", log.ErrorField(err))
		return
	}
	b.reg = reg
}

func (b *broadcastServer[T]) serve() {
	defer func() {
		b.cancel()
		b.mutex.Lock()
		defer b.mutex.Unlock()
		for _, listener := range b.listeners {
			close(listener)
		}
		b.listeners = nil
	}()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ch := <-b.addListener:
			b.mutex.Lock()
			b.listeners = append(b.listeners, ch)
			b.mutex.Unlock()
		case ch := <-b.removeListener:
			b.remove(ch)
		case msg, ok := <-b.source:
			if !ok {
				b.l.Debug("source closed", log.String("name", b.name))
				return
			}
			b.send(msg)
		}
	}
}

func (b *broadcastServer[T]) remove(ch <-chan T) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(listener)
			return
		}
	}
}

func (b *broadcastServer[T]) send(msg T) {
	b.mutex.Lock()
	listeners := make([]chan T, len(b.listeners))
	copy(listeners, b.listeners)
	b.numRcv++
	b.mutex.Unlock()

	var snd, skip int64
	for _, listener := range listeners {
		select {
		case listener <- msg:
			snd++
		case <-time.After(b.sendTimeout):
			skip++
		}
	}
	b.mutex.Lock()
	b.numSnd += snd
	b.numSkip += skip
	b.mutex.Unlock()
}
