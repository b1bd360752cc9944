package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                  string // connection string for the database
	NatsURL             string // url of the NATS server, empty disables publishing
	NatsSubjectPrefix   string // prefix for published subjects
	NatsStandingsBucket string // JetStream kv bucket for final standings, empty disables
	WaitForServices     string // duration to wait for other services to be ready
	LogLevel            string // sets the log level (zap log level values)
	SQLLogLevel         string // sets the log level for sql subsystem
	LogFormat           string // text vs json
	LogFilter           string // zapfilter rules, e.g. "debug:race.* info+:*"
	MigrationSourceURL  string // location of migration files, empty uses the embedded ones
	EnableTelemetry     bool   // enable telemetry
	TelemetryEndpoint   string // endpoint for telemetry, "stdout" writes to console
	LapTimeout          string // stalled laps are auto-submitted after this duration, 0 disables
	WatchdogInterval    string // interval for checking stalled laps
	RaceCacheTTL        string // how long tracks and cars are kept in the lookup cache
)

// Config holds the configuration values which are used by the application
type Config struct {
	PrintLapResults bool // if true, the lap results are printed on debug level
}
