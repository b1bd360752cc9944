package track

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/repository/api"
	"github.com/mpapenbr/boostrace/pkg/trackfile"
)

var skipExisting bool

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "stores track definitions from yaml files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracks := make([]*model.Track, 0, len(args))
			for _, path := range args {
				t, err := trackfile.Load(path)
				if err != nil {
					return err
				}
				tracks = append(tracks, t)
			}
			return withRepos(cmd.Context(),
				func(ctx context.Context, repos api.Repositories, tx api.TransactionManager) error {
					return tx.RunInTx(ctx, func(ctx context.Context) error {
						return importTracks(ctx, repos.Track(), tracks)
					})
				})
		},
	}
	cmd.Flags().BoolVar(&skipExisting,
		"skip-existing",
		false,
		"silently skip tracks whose id already exists")
	return cmd
}

//nolint:whitespace // can't make both editor and linter happy
func importTracks(
	ctx context.Context, repo api.TrackRepository, tracks []*model.Track,
) error {
	for _, t := range tracks {
		var err error
		if skipExisting {
			err = repo.EnsureTrack(ctx, t)
		} else {
			err = repo.Create(ctx, t)
		}
		if errors.Is(err, api.ErrDuplicateKey) {
			log.Error("track already exists", log.Int("id", t.ID), log.String("name", t.Name))
			return err
		}
		if err != nil {
			return err
		}
		log.Info("track imported",
			log.Int("id", t.ID),
			log.String("name", t.Name),
			log.Int("sectors", len(t.Sectors)))
	}
	return nil
}
