// Package util holds the setup steps shared by the commands.
package util

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/config"
	"github.com/mpapenbr/boostrace/pkg/db/postgres"
	"github.com/mpapenbr/boostrace/pkg/publish"
	natspublish "github.com/mpapenbr/boostrace/pkg/publish/nats"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
	bobrepos "github.com/mpapenbr/boostrace/pkg/repository/bob"
	"github.com/mpapenbr/boostrace/pkg/repository/memory"
	"github.com/mpapenbr/boostrace/pkg/utils"
)

var sqlLogger = log.Default()

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// ParseDuration parses s and returns defaultVal if s is not a valid duration.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn("invalid duration, using default",
			log.String("value", s),
			log.Duration("default", defaultVal))
		return defaultVal
	}
	return d
}

// SetupLogger replaces the default logger according to the log flags.
func SetupLogger() {
	console := config.LogFormat != "json"
	level := ParseLogLevel(config.LogLevel, log.InfoLevel)
	logger := log.NewWithFilter(os.Stderr, level, console, config.LogFilter,
		log.WithCaller(true),
		log.AddCallerSkip(1))
	sqlLogger = log.NewWithFilter(os.Stderr,
		ParseLogLevel(config.SQLLogLevel, log.InfoLevel),
		console, config.LogFilter,
		log.WithCaller(true),
		log.AddCallerSkip(1))
	log.ResetDefault(logger)
}

// SetupTelemetry starts telemetry if enabled. The result may be nil.
func SetupTelemetry(ctx context.Context) *config.Telemetry {
	if !config.EnableTelemetry {
		return nil
	}
	log.Info("Enabling telemetry")
	telemetry, err := config.SetupTelemetry(ctx)
	if err != nil {
		log.Warn("Could not setup telemetry", log.ErrorField(err))
		return nil
	}
	err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		log.Warn("Could not start runtime metrics", log.ErrorField(err))
	}
	return telemetry
}

// WaitForServices waits until the configured database and NATS server accept
// connections.
func WaitForServices(ctx context.Context) error {
	timeout := ParseDuration(config.WaitForServices, 60*time.Second)
	if config.DB != "" {
		if err := utils.WaitForTCP(ctx, utils.ExtractFromDBURL(config.DB), timeout); err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}
	}
	if config.NatsURL != "" {
		if err := utils.WaitForTCP(ctx, utils.ExtractFromNatsURL(config.NatsURL), timeout); err != nil {
			return fmt.Errorf("nats not ready: %w", err)
		}
	}
	return nil
}

// OpenRepositories connects to the configured database. Without a database the
// data is kept in memory. The returned func releases the connections.
//
//nolint:whitespace // can't make both editor and linter happy
func OpenRepositories(ctx context.Context) (
	api.Repositories, api.TransactionManager, func(), error,
) {
	if config.DB == "" {
		log.Info("No database configured, using in-memory storage")
		return memory.NewRepositories(), memory.NewTransactionManager(), func() {}, nil
	}
	pgTraceOption := postgres.WithTracer(sqlLogger, log.DebugLevel)
	if config.EnableTelemetry {
		pgTraceOption = postgres.WithOtlpTracer()
	}
	pool, err := postgres.NewPool(ctx, config.DB, pgTraceOption)
	if err != nil {
		return nil, nil, nil, err
	}
	return bobrepos.NewRepositoriesFromPool(pool),
		bobrepos.NewTransactionManagerFromPool(pool),
		pool.Close,
		nil
}

// ConnectNats returns nil if no NATS url is configured.
func ConnectNats() (*nats.Conn, error) {
	if config.NatsURL == "" {
		return nil, nil
	}
	l := log.Default().Named("nats")
	return nats.Connect(config.NatsURL,
		nats.Name("brace"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn("disconnected", log.ErrorField(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info("reconnected", log.String("url", c.ConnectedUrl()))
		}))
}

// NewPublisher creates a NATS publisher if conn is not nil.
//
//nolint:whitespace // can't make both editor and linter happy
func NewPublisher(ctx context.Context, conn *nats.Conn) (
	publish.Publisher, error,
) {
	if conn == nil {
		return publish.Noop(), nil
	}
	return NewNatsPublisher(ctx, conn)
}

//nolint:whitespace // can't make both editor and linter happy
func NewNatsPublisher(ctx context.Context, conn *nats.Conn) (
	*natspublish.Publisher, error,
) {
	opts := []natspublish.Option{
		natspublish.WithSubjectPrefix(config.NatsSubjectPrefix),
	}
	if config.NatsStandingsBucket != "" {
		opts = append(opts, natspublish.WithStandingsBucket(config.NatsStandingsBucket))
	}
	return natspublish.New(ctx, conn, opts...)
}
