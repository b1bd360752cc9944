// Package simulate runs a complete race with bot players.
package simulate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/cmd/util"
	"github.com/mpapenbr/boostrace/pkg/config"
	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/random"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
	"github.com/mpapenbr/boostrace/pkg/service/race"
	"github.com/mpapenbr/boostrace/pkg/trackfile"
)

//go:embed default_track.yaml
var defaultTrack []byte

type options struct {
	trackFile string
	trackID   int
	players   int
	idle      int
	laps      int
	seed      uint64
}

var (
	appConfig config.Config
	opts      options
)

func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "runs a race with bot players",
		Long: `Runs a complete race with bot players. Every bot submits a random
available card. Idle players never submit; their laps are resolved by the
watchdog once the lap timeout is reached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&opts.trackFile, "track", "t", "",
		"yaml file with the track definition (default: built-in track)")
	cmd.Flags().IntVar(&opts.trackID, "track-id", 0,
		"id of a stored track, takes precedence over --track")
	cmd.Flags().IntVarP(&opts.players, "players", "p", 4, "number of players")
	cmd.Flags().IntVar(&opts.idle, "idle", 0, "number of players that never submit")
	cmd.Flags().IntVarP(&opts.laps, "laps", "l", 3, "number of laps")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed (0: random)")
	cmd.Flags().StringVar(&config.LapTimeout, "lap-timeout", "0s",
		"stalled laps are auto-submitted after this duration (0 disables)")
	cmd.Flags().StringVar(&config.WatchdogInterval, "watchdog-interval", "1s",
		"interval for checking stalled laps")
	cmd.Flags().StringVar(&config.RaceCacheTTL, "cache-ttl", "5m",
		"how long tracks and cars are cached")
	cmd.Flags().BoolVar(&appConfig.PrintLapResults, "print-lap-results", false,
		"if true and log level is debug, the complete lap results are logged")
	return cmd
}

//nolint:funlen,cyclop // by design
func runSimulation(ctx context.Context) error {
	if opts.players < 1 {
		return errors.New("at least one player is required")
	}
	if opts.idle < 0 || opts.idle > opts.players {
		return fmt.Errorf("idle players must be between 0 and %d", opts.players)
	}
	lapTimeout := util.ParseDuration(config.LapTimeout, 0)
	if opts.idle > 0 && lapTimeout <= 0 {
		return errors.New("idle players require a lap timeout (--lap-timeout)")
	}
	if opts.seed == 0 {
		opts.seed = rand.Uint64()
	}
	log.Info("Starting simulation",
		log.Int("players", opts.players),
		log.Int("idle", opts.idle),
		log.Int("laps", opts.laps),
		log.Uint64("seed", opts.seed))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	telemetry := util.SetupTelemetry(ctx)
	if telemetry != nil {
		defer telemetry.Shutdown()
	}
	if err := util.WaitForServices(ctx); err != nil {
		return err
	}
	repos, tx, closer, err := util.OpenRepositories(ctx)
	if err != nil {
		return err
	}
	defer closer()
	conn, err := util.ConnectNats()
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}
	publisher, err := util.NewPublisher(ctx, conn)
	if err != nil {
		return err
	}

	svc := race.New(
		race.WithRepositories(repos, tx),
		race.WithPublisher(publisher),
		race.WithLapTimeout(lapTimeout),
		race.WithCacheTTL(util.ParseDuration(config.RaceCacheTTL, 5*time.Minute)),
		race.WithSourceFactory(seededSources(opts.seed)),
	)
	defer svc.Close()
	go svc.RunWatchdog(ctx,
		util.ParseDuration(config.WatchdogInterval, time.Second))

	trackID, err := provideTrack(ctx, repos)
	if err != nil {
		return err
	}
	bots := newBots(opts.seed, opts.players, opts.idle)
	for _, b := range bots {
		if err := svc.RegisterCar(ctx, b.car); err != nil {
			return err
		}
	}
	r, err := svc.CreateRace(ctx, trackID, opts.laps)
	if err != nil {
		return err
	}
	for _, b := range bots {
		if _, err := svc.Join(ctx, r.ID, b.id, b.car.Car.ID, b.car.Pilot.ID); err != nil {
			return err
		}
	}
	laps, cancel, err := svc.Subscribe(ctx, r.ID)
	if err != nil {
		return err
	}
	defer cancel()
	if err := svc.Start(ctx, r.ID); err != nil {
		return err
	}
	fmt.Printf("race %s on track %d, %d laps\n", r.ID, trackID, opts.laps)

	if err := drive(ctx, svc, r.ID, bots, laps); err != nil {
		return err
	}
	standings, err := svc.Standings(ctx, r.ID)
	if err != nil {
		return err
	}
	printStandings(standings)
	return nil
}

// drive lets the bots submit until the race is over. Each round waits for the
// lap result, which may be produced by the watchdog if idle players exist.
//
//nolint:whitespace // can't make both editor and linter happy
func drive(
	ctx context.Context,
	svc *race.Service,
	raceID string,
	bots []*bot,
	laps <-chan *model.LapResult,
) error {
	byID := make(map[string]*bot, len(bots))
	for _, b := range bots {
		byID[b.id] = b
	}
	for {
		current, err := svc.Get(ctx, raceID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return nil
		}
		for _, playerID := range current.WaitingFor() {
			b := byID[playerID]
			if b.idle {
				continue
			}
			card := b.choose(current.Participant(playerID).BoostHand.AvailableCards())
			if _, err := svc.Submit(ctx, raceID, playerID, card); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lap, ok := <-laps:
			if !ok {
				return nil
			}
			printLap(lap)
		}
	}
}

// seededSources hands out sources seeded with seed, seed+1, ... so a race loaded
// again after a rejected operation continues with a fresh sequence.
func seededSources(seed uint64) race.SourceFactory {
	var loads atomic.Uint64
	return func(string) random.Source {
		return random.New(seed + loads.Add(1) - 1)
	}
}

// provideTrack returns the id of the track to race on. Tracks from files are
// stored unless a track with the same id exists.
func provideTrack(ctx context.Context, repos api.Repositories) (int, error) {
	if opts.trackID != 0 {
		if _, err := repos.Track().LoadByID(ctx, opts.trackID); err != nil {
			return 0, fmt.Errorf("track %d: %w", opts.trackID, err)
		}
		return opts.trackID, nil
	}
	var t *model.Track
	var err error
	if opts.trackFile != "" {
		t, err = trackfile.Load(opts.trackFile)
	} else {
		t, err = trackfile.Parse(defaultTrack)
	}
	if err != nil {
		return 0, err
	}
	if err := repos.Track().EnsureTrack(ctx, t); err != nil {
		return 0, err
	}
	return t.ID, nil
}

func printLap(lap *model.LapResult) {
	fmt.Printf("lap %d (%s)\n", lap.LapNumber, lap.Characteristic)
	for _, m := range lap.Movements {
		fmt.Printf("  %-10s %d -> %d  %s\n", m.PlayerID, m.FromSector, m.ToSector, m.Kind)
	}
	if appConfig.PrintLapResults {
		log.Debug("lap result", log.Any("lap", lap))
	}
}

func printStandings(standings []model.Standing) {
	fmt.Println("standings")
	for _, s := range standings {
		state := "running"
		if s.Finished {
			state = "finished"
		}
		fmt.Printf("  %2d. %-10s sector %d pos %d value %d %s\n",
			s.Position, s.PlayerID, s.SectorIndex, s.PositionInSector,
			s.CumulativeValue, state)
	}
}
