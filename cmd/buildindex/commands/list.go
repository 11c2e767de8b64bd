package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/openslide/buildindex/pkg/engine/report"
	"github.com/openslide/buildindex/pkg/engine/rows"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the retained builds",
	Long: `Prints the retained builds newest first. Revisions that changed since
the previous build are shown as previous -> current.

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
		p := eng.Profile()
		if len(display) == 0 {
			fmt.Fprintln(out, "No builds recorded.")
			return nil
		}
		fmt.Fprintln(out, renderTable(p.FieldKeys(), rows.Reverse(display)))
		fmt.Fprintf(out, "%d of %d builds retained.\n", len(display), p.Retain)
		return nil
	},
}

func renderTable(fieldKeys []string, newestFirst []rows.DisplayRow) string {
	changed := lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF99"))

	headers := append([]string{"ID", "Date"}, fieldKeys...)
	headers = append(headers, "Files")

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))).
		Headers(headers...)

	for _, row := range newestFirst {
		cells := []string{row.ID, row.Date}
		for _, key := range fieldKeys {
			f := row.Field(key)
			if f.Changed() {
				cells = append(cells, changed.Render(report.Short(f.Previous)+" -> "+report.Short(f.Current)))
			} else {
				cells = append(cells, report.Short(f.Current))
			}
		}
		cells = append(cells, strings.Join(row.Files, " "))
		t.Row(cells...)
	}
	return t.Render()
}
