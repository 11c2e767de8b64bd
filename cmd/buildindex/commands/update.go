package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openslide/buildindex/pkg/engine/buildinfo"
)

var (
	newBuild buildinfo.Input
	dryRun   bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Record a build, purge old releases and publish the index",
	Long: `Loads the build log, appends the new build if one is given, deletes the
releases of builds that fall out of the retention window, renders the
HTML index and writes the log back.

Without build flags the index is only trimmed and re-rendered. Either
every build flag is given or none.

Example:
  buildindex update --site site --version 4.0.0+20231015.1a2b3c --files out \
      --rev openslide=1a2b3c4d --rev openslide-java=5e6f7a8b \
      --rev openslide-bin=9c0d1e2f \
      --builder linux-builder=ghcr.io/openslide/linux-builder@sha256:... \
      --builder windows-builder=ghcr.io/openslide/winbuild-builder@sha256:...`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	addUpdateFlags(updateCmd.Flags())
}

func addUpdateFlags(fs *pflag.FlagSet) {
	fs.StringVar(&newBuild.ID, "id", "", "Identifier of the new build (alias --version, --pkgver)")
	fs.StringVar(&newBuild.Date, "date", "", "Build date YYYY-MM-DD (derived from the identifier by default)")
	fs.StringVar(&newBuild.FilesDir, "files", "", "Directory holding the build's artifacts")
	fs.StringToStringVar(&newBuild.Fields, "rev", nil, "Tracked revision as key=commit (repeatable)")
	fs.StringToStringVar(&newBuild.Builders, "builder", nil, "Builder image as key=ref (repeatable)")
	fs.BoolVar(&dryRun, "dry-run", false, "Print the purge plan as JSON without changing anything")
}

// normalizeIDFlag accepts the identifier flag names of both builtin profiles.
func normalizeIDFlag(f *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "version", "pkgver":
		name = "id"
	}
	return pflag.NormalizedName(name)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := newEngine(ctx, !dryRun)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	record, err := buildinfo.NewRecord(eng.Profile(), newBuild)
	if err != nil {
		return err
	}

	if dryRun {
		plan, err := eng.Plan(ctx, record)
		if err != nil {
			return err
		}
		return plan.Write(cmd.OutOrStdout())
	}

	res, err := eng.Run(ctx, record)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, okStyle.Render("[SUCCESS]"), fmt.Sprintf("%d builds retained", len(res.Log.Builds)))
	if record != nil {
		fmt.Fprintf(out, "   Added:        %s\n", record.ID)
	}
	if len(res.Purge.Deleted) > 0 {
		fmt.Fprintf(out, "   Deleted:      %s\n", strings.Join(res.Purge.Deleted, ", "))
	}
	if len(res.Purge.AlreadyGone) > 0 {
		fmt.Fprintf(out, "   Already gone: %s\n", strings.Join(res.Purge.AlreadyGone, ", "))
	}
	return nil
}
