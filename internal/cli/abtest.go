package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adpilot/adpilot/internal/experiment"
	"github.com/adpilot/adpilot/internal/optimizer"
	"github.com/adpilot/adpilot/internal/store"
)

func init() {
	abtestCmd := &cobra.Command{
		Use:   "abtest",
		Short: "Manage A/B tests between ad variants",
	}
	abtestCmd.AddCommand(newABCreateCmd())
	abtestCmd.AddCommand(abListCmd)
	abtestCmd.AddCommand(newABEvaluateCmd())
	abtestCmd.AddCommand(abResultsCmd)
	abtestCmd.AddCommand(abDeleteCmd)
	rootCmd.AddCommand(abtestCmd)
}

func newABCreateCmd() *cobra.Command {
	var (
		campaignID string
		adsetID    string
		metric     string
		autoApply  bool
		variants   string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an A/B test over existing ads",
		Long: `Create an A/B test. Each variant maps a label to an existing ad ID in
the same ad set; the metric decides the winner at evaluation time.

Examples:
  adpilot abtest create hero --adset 789 --metric ctr --variants "A=111,B=222"
  adpilot abtest create copy --adset 789 --metric cpc --variants "short=111,long=222,emoji=333" --auto-apply`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if _, err := optimizer.ParseMetric(metric); err != nil {
				return err
			}
			variantList, err := parseVariants(variants)
			if err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				test, err := s.CreateTest(context.Background(), name, campaignID, adsetID, metric, autoApply, variantList)
				if err != nil {
					return fmt.Errorf("failed to create test: %w", err)
				}

				fmt.Printf("Created test %s ('%s', metric %s) with %d variants:\n", test.ID, test.Name, test.Metric, len(test.Variants))
				for _, v := range test.Variants {
					fmt.Printf("  %s: ad %s\n", v.Name, v.AdID)
				}
				if test.AutoApply {
					fmt.Println("  auto-apply: losing variants will be paused on evaluation")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign ID (optional)")
	cmd.Flags().StringVar(&adsetID, "adset", "", "ad set ID containing the variant ads (required)")
	cmd.Flags().StringVar(&metric, "metric", "ctr", "metric that decides the winner")
	cmd.Flags().BoolVar(&autoApply, "auto-apply", false, "pause losing variants when evaluated")
	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated name=ad_id pairs (required)")
	cmd.MarkFlagRequired("adset")
	cmd.MarkFlagRequired("variants")

	return cmd
}

// parseVariants decodes "A=111,B=222" into variant records.
func parseVariants(s string) ([]store.TestVariant, error) {
	parts := strings.Split(s, ",")
	variants := make([]store.TestVariant, 0, len(parts))
	for _, part := range parts {
		name, adID, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || adID == "" {
			return nil, fmt.Errorf("bad variant %q, expected name=ad_id", part)
		}
		variants = append(variants, store.TestVariant{Name: name, AdID: adID})
	}
	if len(variants) < 2 {
		return nil, fmt.Errorf("need at least 2 variants. Example: --variants \"A=111,B=222\"")
	}
	return variants, nil
}

var abListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all A/B tests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore) error {
			tests, err := s.ListTests(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list tests: %w", err)
			}

			if len(tests) == 0 {
				fmt.Println("No tests yet. Create one with 'adpilot abtest create'.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMETRIC\tSTATUS\tVARIANTS\tWINNER\tCREATED")
			for _, test := range tests {
				winner := "-"
				if test.Winner != nil {
					winner = test.Winner.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					test.ID, test.Name, test.Metric, strings.ToUpper(string(test.Status)),
					len(test.Variants), winner, test.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		})
	},
}

func newABEvaluateCmd() *cobra.Command {
	var (
		apply   bool
		noApply bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate <test-id>",
		Short: "Evaluate an A/B test against live metrics",
		Long: `Fetch fresh metrics for every variant, rank them, and pick a winner.

With the test's auto-apply flag (or --apply), losing variants are paused.
--no-apply forces a report-only evaluation regardless of the stored flag.
Re-running an evaluation is safe: already-paused variants stay untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if apply && noApply {
				return fmt.Errorf("use --apply OR --no-apply, not both")
			}
			var autoApply *bool
			if apply {
				autoApply = &apply
			} else if noApply {
				f := false
				autoApply = &f
			}

			return withApp(func(a *app) error {
				result, err := a.evaluator().Evaluate(context.Background(), args[0], autoApply)
				if err != nil {
					return err
				}
				printEvaluation(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "pause losing variants even if the test has auto-apply off")
	cmd.Flags().BoolVar(&noApply, "no-apply", false, "report only, never pause")

	return cmd
}

var abResultsCmd = &cobra.Command{
	Use:   "results <test-id>",
	Short: "Show the stored outcome of an evaluated test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore) error {
			test, err := s.GetTest(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Test %s ('%s'), metric %s, status %s\n", test.ID, test.Name, test.Metric, test.Status)
			if test.EvaluatedAt != nil {
				fmt.Printf("Evaluated at %s\n", test.EvaluatedAt.Format("2006-01-02 15:04"))
			}
			if test.Winner != nil {
				fmt.Printf("Winner: %s (ad %s, %s %.4f)\n", test.Winner.Name, test.Winner.AdID, test.Winner.Metric, test.Winner.Value)
			} else {
				fmt.Println("No winner recorded.")
			}

			if len(test.Results) > 0 {
				fmt.Println()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VARIANT\tAD\tPAUSED\t"+strings.ToUpper(test.Metric))
				for _, v := range test.Variants {
					value := "n/a"
					if metrics, ok := test.Results[v.AdID]; ok {
						if raw, ok := metrics[test.Metric]; ok {
							value = fmt.Sprintf("%.4f", raw)
						}
					}
					fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", v.Name, v.AdID, v.Paused, value)
				}
				return w.Flush()
			}
			return nil
		})
	},
}

var abDeleteCmd = &cobra.Command{
	Use:   "delete <test-id>",
	Short: "Delete an A/B test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore) error {
			if err := s.DeleteTest(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted test %s\n", args[0])
			return nil
		})
	},
}

func printEvaluation(cmd *cobra.Command, result *experiment.Result) {
	out := cmd.OutOrStdout()

	if result.Winner == nil {
		fmt.Fprintf(out, "No winner: no variant has %s data for the window.\n", result.Metric)
		return
	}

	showCI := false
	for _, r := range result.Ranking {
		if r.CILower != nil {
			showCI = true
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "RANK\tVARIANT\tAD\t" + strings.ToUpper(string(result.Metric))
	if showCI {
		header += "\t95% CI"
	}
	fmt.Fprintln(w, header)
	for _, r := range result.Ranking {
		value := "n/a"
		if r.HasValue {
			value = fmt.Sprintf("%.4f", r.Value)
		}
		row := fmt.Sprintf("%d\t%s\t%s\t%s", r.Rank, r.Variant.Name, r.Variant.AdID, value)
		if showCI {
			ci := "n/a"
			if r.CILower != nil {
				ci = fmt.Sprintf("%.2f-%.2f", *r.CILower, *r.CIUpper)
			}
			row += "\t" + ci
		}
		fmt.Fprintln(w, row)
	}
	w.Flush()

	fmt.Fprintf(out, "\nWinner: %s (ad %s)", result.Winner.Variant.Name, result.Winner.Variant.AdID)
	if result.Confidence != nil {
		fmt.Fprintf(out, ", %.0f%% confidence over runner-up", *result.Confidence*100)
	}
	fmt.Fprintln(out)

	if result.AutoApplied {
		paused, failed := 0, 0
		for _, a := range result.ActionsApplied {
			switch a.Status {
			case optimizer.ExecApplied:
				paused++
			case optimizer.ExecFailed:
				failed++
			}
		}
		fmt.Fprintf(out, "Paused %d losing variant(s)", paused)
		if failed > 0 {
			fmt.Fprintf(out, ", %d pause(s) failed", failed)
		}
		fmt.Fprintln(out)
	}
}
