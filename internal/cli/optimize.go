package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/adpilot/adpilot/internal/optimizer"
)

func init() {
	rootCmd.AddCommand(newOptimizeCmd())
}

func newOptimizeCmd() *cobra.Command {
	var (
		preset     string
		rulesFile  string
		datePreset string
		dryRun     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "optimize <campaign-id>",
		Short: "Run an optimization cycle on a campaign",
		Long: `Evaluate performance rules against a campaign's live insights and apply
the triggered actions.

Rules come from a named preset or from a JSON file. With neither flag set
and a terminal attached, a preset picker opens; otherwise the balanced
preset applies.

Examples:
  adpilot optimize 123456 --preset conservative --dry-run
  adpilot optimize 123456 --preset aggressive --date-preset last_30d
  adpilot optimize 123456 --rules my-rules.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaignID := args[0]

			if preset != "" && rulesFile != "" {
				return fmt.Errorf("use --preset OR --rules, not both")
			}

			rules, err := resolveRules(preset, rulesFile)
			if err != nil {
				return err
			}

			return withApp(func(a *app) error {
				report, err := a.engine().RunOptimization(context.Background(), campaignID, rules, optimizer.Options{
					Window: optimizer.Window{Preset: datePreset},
					DryRun: dryRun,
				})
				if err != nil {
					return err
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				printReport(cmd, report)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "rule preset: "+strings.Join(optimizer.PresetNames(), ", "))
	cmd.Flags().StringVar(&rulesFile, "rules", "", "JSON file with a custom rule batch")
	cmd.Flags().StringVar(&datePreset, "date-preset", "", "insights window (default last_7d)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute actions without applying them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")

	return cmd
}

func resolveRules(preset, rulesFile string) ([]optimizer.Rule, error) {
	if rulesFile != "" {
		data, err := os.ReadFile(rulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
		var rules []optimizer.Rule
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("failed to parse rules file: %w", err)
		}
		if err := optimizer.ValidateRules(rules); err != nil {
			return nil, err
		}
		return rules, nil
	}

	if preset == "" {
		if isTerminal() {
			picked, err := pickPreset()
			if err != nil {
				return nil, err
			}
			preset = picked
		} else {
			preset = "balanced"
		}
	}
	return optimizer.LookupPreset(preset)
}

func pickPreset() (string, error) {
	prompt := promptui.Select{
		Label: "Rule preset",
		Items: optimizer.PresetNames(),
	}
	_, result, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("preset selection cancelled: %w", err)
	}
	return result, nil
}

func isTerminal() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func printReport(cmd *cobra.Command, report *optimizer.Report) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Run %s on campaign %s", report.RunID, report.CampaignID)
	if report.DryRun {
		fmt.Fprint(out, " (dry run)")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tVALUE\tTRIGGERED")
	for _, v := range report.Verdicts {
		value := "n/a"
		if v.HasValue {
			value = fmt.Sprintf("%.2f", v.Value)
		}
		fmt.Fprintf(w, "%s %s %.2f -> %s\t%s\t%v\n",
			v.Rule.Metric, conditionSymbol(v.Rule.Condition), v.Rule.Threshold, v.Rule.Action, value, v.Triggered)
	}
	w.Flush()

	if len(report.Actions) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACTION\tSTATUS\tDETAIL")
		for _, a := range report.Actions {
			detail := a.Detail
			if detail == "" {
				detail = a.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Action.Action, a.Status, detail)
		}
		w.Flush()
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, report.Summary)
}

func conditionSymbol(c optimizer.Condition) string {
	if c == optimizer.GreaterThan {
		return ">"
	}
	return "<"
}
