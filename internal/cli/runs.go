package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adpilot/adpilot/internal/store"
)

func init() {
	rootCmd.AddCommand(newRunsCmd())
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the optimization audit log",
		Long:  `List recorded optimization cycles, newest first. Dry runs are not recorded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				runs, err := s.ListRuns(context.Background(), limit)
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}

				if len(runs) == 0 {
					fmt.Println("No optimization runs recorded yet.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RUN\tCAMPAIGN\tWINDOW\tRULES\tTRIGGERED\tACTIONS\tWHEN")
				for _, run := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						run.ID, run.CampaignID, run.DatePreset,
						run.Rules, run.Triggered, run.Actions,
						run.CreatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}
