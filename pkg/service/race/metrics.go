package race

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
)

type metrics struct {
	submissions metric.Int64Counter
	rejected    metric.Int64Counter
	laps        metric.Int64Counter
	finished    metric.Int64Counter
}

func newMetrics(l *log.Logger) *metrics {
	meter := otel.GetMeterProvider().Meter("brace.race")
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"))
		if err != nil {
			l.Error("failed to create metric",
				log.String("metric", name), log.ErrorField(err))
			return noop.Int64Counter{}
		}
		return c
	}
	return &metrics{
		submissions: counter("brace.race.submissions", "Number of accepted boost submissions"),
		rejected:    counter("brace.race.rejected", "Number of rejected boost submissions"),
		laps:        counter("brace.race.laps", "Number of resolved laps"),
		finished:    counter("brace.race.finished", "Number of finished races"),
	}
}

func (m *metrics) recordSubmit(ctx context.Context, err error, auto bool) {
	if err == nil {
		m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("auto", auto)))
		return
	}
	kind := "other"
	if k := raceerr.KindOf(err); k != 0 {
		kind = k.String()
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
