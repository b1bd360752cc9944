package race

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/cmd/util"
	"github.com/mpapenbr/boostrace/pkg/config"
	natspublish "github.com/mpapenbr/boostrace/pkg/publish/nats"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "prints the lap results of a running race published via NATS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd, args[0])
		},
	}
}

//nolint:funlen // by design
func watch(cmd *cobra.Command, raceID string) error {
	if config.NatsURL == "" {
		return errors.New("no NATS server configured (--nats-url)")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if err := util.WaitForServices(ctx); err != nil {
		return err
	}
	conn, err := util.ConnectNats()
	if err != nil {
		return err
	}
	defer conn.Close()

	laps, err := natspublish.SubscribeLaps(ctx, conn, config.NatsSubjectPrefix, raceID)
	if err != nil {
		return err
	}
	log.Info("watching race", log.String("race", raceID))
	for {
		select {
		case <-ctx.Done():
			return nil
		case lap, ok := <-laps:
			if !ok {
				return nil
			}
			fmt.Printf("lap %d (%s)\n", lap.LapNumber, lap.Characteristic)
			for _, m := range lap.Movements {
				fmt.Printf("  %-10s %d -> %d  %s\n",
					m.PlayerID, m.FromSector, m.ToSector, m.Kind)
			}
			if lap.RaceFinished {
				return showFinalStandings(cmd, raceID)
			}
		}
	}
}

// showFinalStandings reads the standings from the kv bucket if one is configured.
func showFinalStandings(cmd *cobra.Command, raceID string) error {
	if config.NatsStandingsBucket == "" {
		fmt.Println("race finished")
		return nil
	}
	conn, err := util.ConnectNats()
	if err != nil {
		return err
	}
	defer conn.Close()
	p, err := util.NewNatsPublisher(cmd.Context(), conn)
	if err != nil {
		return err
	}
	// the standings are written right after the last lap was published
	var msg *natspublish.FinishedMessage
	for range 10 {
		if msg, err = p.LoadStandings(cmd.Context(), raceID); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("standings of %s: %w", raceID, err)
	}
	return printStandings(msg.Standings)
}
