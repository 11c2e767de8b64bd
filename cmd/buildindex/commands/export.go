package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openslide/buildindex/pkg/engine/report"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the retained builds (CSV, JSON)",
	Long: `Writes the retained builds oldest first to stdout, with the previous
value of every revision that changed.

Does not contact the hosting service.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := newEngine(ctx, false)
		if err != nil {
			return err
		}
		display, err := eng.Rows(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch exportFormat {
		case "csv":
			return report.GenerateCSV(out, eng.Profile().FieldKeys(), display)
		case "json":
			return report.GenerateJSON(out, display)
		default:
			return fmt.Errorf("unknown format %q (expected csv or json)", exportFormat)
		}
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "Output format: csv or json")
}
