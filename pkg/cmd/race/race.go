package race

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/boostrace/pkg/cmd/util"
	"github.com/mpapenbr/boostrace/pkg/config"
	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
)

func NewRaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "race",
		Short: "commands to inspect races",
	}
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newPerformanceCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newWatchCmd())
	return cmd
}

//nolint:whitespace // can't make both editor and linter happy
func withRepos(
	ctx context.Context,
	fn func(ctx context.Context, repos api.Repositories, tx api.TransactionManager) error,
) error {
	if config.DB == "" {
		return errors.New("no database configured (--db)")
	}
	if err := util.WaitForServices(ctx); err != nil {
		return err
	}
	repos, tx, closer, err := util.OpenRepositories(ctx)
	if err != nil {
		return err
	}
	defer closer()
	return fn(ctx, repos, tx)
}

func printStandings(standings []model.Standing) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tPLAYER\tSECTOR\tIN SECTOR\tVALUE\tFINISHED")
	for _, s := range standings {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%t\n",
			s.Position, s.PlayerID, s.SectorIndex, s.PositionInSector,
			s.CumulativeValue, s.Finished)
	}
	return w.Flush()
}

func parseStatus(names []string) ([]model.RaceStatus, error) {
	ret := make([]model.RaceStatus, 0, len(names))
	for _, n := range names {
		var s model.RaceStatus
		if err := s.UnmarshalText([]byte(n)); err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}
