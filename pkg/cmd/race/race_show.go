package race

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/boostrace/pkg/repository/api"
)

func newListCmd() *cobra.Command {
	var status []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "lists stored races",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStatus(status)
			if err != nil {
				return err
			}
			return withRepos(cmd.Context(),
				func(ctx context.Context, repos api.Repositories, _ api.TransactionManager) error {
					ids, err := repos.Race().LoadIDs(ctx, states...)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tTRACK\tSTATUS\tLAP\tPLAYERS")
					for _, id := range ids {
						r, err := repos.Race().LoadByID(ctx, id)
						if err != nil {
							return err
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\n",
							r.ID, r.Track.Name, r.Status, r.CurrentLap, r.TotalLaps,
							len(r.Participants))
					}
					return w.Flush()
				})
		},
	}
	cmd.Flags().StringSliceVar(&status, "status", nil,
		"only races in these states (waiting, in_progress, finished, cancelled)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "shows state and standings of a race",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepos(cmd.Context(),
				func(ctx context.Context, repos api.Repositories, _ api.TransactionManager) error {
					r, err := repos.Race().LoadByID(ctx, args[0])
					if err != nil {
						return fmt.Errorf("race %s: %w", args[0], err)
					}
					laps, err := repos.Lap().LoadByRaceID(ctx, r.ID)
					if err != nil {
						return err
					}
					fmt.Printf("race:   %s\ntrack:  %s\nstatus: %s\nlap:    %d/%d\n",
						r.ID, r.Track.Name, r.Status, r.CurrentLap, r.TotalLaps)
					fmt.Printf("resolved laps: %d\n\n", len(laps))
					return printStandings(r.Standings())
				})
		},
	}
}

func newPerformanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "performance <race-id> <player-id>",
		Short: "shows the performance breakdowns of a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepos(cmd.Context(),
				func(ctx context.Context, repos api.Repositories, _ api.TransactionManager) error {
					perfs, err := repos.Lap().LoadPerformances(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "LAP\tCHAR\tSECTOR\tBASE\tCEILING\tCAPPED\tBOOST\tMULT\tFINAL")
					for i, p := range perfs {
						fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%.2f\t%d\n",
							i+1, p.Characteristic, p.SectorIndex, p.BaseValue,
							p.SectorCeiling, p.CappedBaseValue, p.BoostValue,
							p.Multiplier, p.FinalValue)
					}
					return w.Flush()
				})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "deletes a race including its laps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepos(cmd.Context(),
				func(ctx context.Context, repos api.Repositories, tx api.TransactionManager) error {
					return tx.RunInTx(ctx, func(ctx context.Context) error {
						if _, err := repos.Lap().DeleteByRaceID(ctx, args[0]); err != nil {
							return err
						}
						num, err := repos.Race().DeleteByID(ctx, args[0])
						if err != nil {
							return err
						}
						fmt.Printf("deleted %d race(s)\n", num)
						return nil
					})
				})
		},
	}
}
