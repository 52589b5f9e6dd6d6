package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adpilot/adpilot/internal/optimizer"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in rule presets",
	RunE:  runPresets,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tRULE\tACTION")

	for _, name := range optimizer.PresetNames() {
		rules, err := optimizer.LookupPreset(name)
		if err != nil {
			return err
		}
		for i, r := range rules {
			label := ""
			if i == 0 {
				label = name
			}
			fmt.Fprintf(w, "%s\t%s %s %.1f\t%s\n", label, r.Metric, conditionSymbol(r.Condition), r.Threshold, r.Action)
		}
	}

	return w.Flush()
}
