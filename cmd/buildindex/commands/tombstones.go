package commands

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openslide/buildindex/pkg/engine/lazarus"
)

var tombstonesCmd = &cobra.Command{
	Use:   "tombstones [build-id]",
	Short: "List purged builds, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		loc := viper.GetString("tombstones")
		if loc == "" {
			return errors.New("--tombstones is not set")
		}
		store, err := openStore(ctx, loc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			ts, err := lazarus.Load(ctx, store, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Build:   %s\nRelease: %s (%s)\nPurged:  %s\n",
				ts.BuildID, ts.ReleaseTag, ts.Repo, time.Unix(ts.Timestamp, 0).UTC().Format(time.DateTime))
			keys := make([]string, 0, len(ts.Record))
			for k := range ts.Record {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %-20s %s\n", k, ts.Record[k])
			}
			return nil
		}

		ids, err := lazarus.List(ctx, store)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	},
}
