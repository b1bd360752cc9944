package track

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/boostrace/pkg/cmd/util"
	"github.com/mpapenbr/boostrace/pkg/config"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
)

func NewTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "commands to manage tracks",
	}
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newDeleteCmd())
	return cmd
}

// withRepos runs fn with the database repositories. Track commands need a
// database, the in-memory storage would be lost after the command.
//
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
