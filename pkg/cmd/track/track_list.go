package track

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
	"github.com/mpapenbr/boostrace/pkg/trackfile"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "lists the stored tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepos(cmd.Context(),
				func(ctx context.Context, repos api.Repositories, _ api.TransactionManager) error {
					tracks, err := repos.Track().LoadAll(ctx)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tNAME\tSECTORS")
					for _, t := range tracks {
						fmt.Fprintf(w, "%d\t%s\t%s\n", t.ID, t.Name, sectorSummary(t))
					}
					return w.Flush()
				})
		},
	}
}

// sectorSummary renders the sectors as min-max[/capacity]
func sectorSummary(t *model.Track) string {
	return strings.Join(lo.Map(t.Sectors, func(s model.Sector, _ int) string {
		if s.Unlimited() {
			return fmt.Sprintf("%d-%d", s.MinValue, s.MaxValue)
		}
		return fmt.Sprintf("%d-%d/%d", s.MinValue, s.MaxValue, *s.Capacity)
	}), " ")
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "writes a stored track as yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid track id %q: %w", args[0], err)
			}
			return withRepos(cmd.Context(),
				func(ctx context.Context, repos api.Repositories, _ api.TransactionManager) error {
					t, err := repos.Track().LoadByID(ctx, id)
					if err != nil {
						return fmt.Errorf("track %d: %w", id, err)
					}
					data, err := trackfile.Marshal(t)
					if err != nil {
						return err
					}
					if output == "" {
						_, err = os.Stdout.Write(data)
						return err
					}
					return os.WriteFile(output, data, 0o600)
				})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "deletes a stored track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid track id %q: %w", args[0], err)
			}
			return withRepos(cmd.Context(),
				func(ctx context.Context, repos api.Repositories, tx api.TransactionManager) error {
					var num int
					if err := tx.RunInTx(ctx, func(ctx context.Context) error {
						var err error
						num, err = repos.Track().DeleteByID(ctx, id)
						return err
					}); err != nil {
						return err
					}
					fmt.Printf("deleted %d track(s)\n", num)
					return nil
				})
		},
	}
}
