package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath  string
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "adpilot",
	Short: "adpilot - rule-based optimization and A/B testing for Meta ad campaigns",
	Long: `adpilot evaluates performance rules against live campaign insights and
applies the resulting actions: pause underperformers, adjust budgets, or
just flag them. It also resolves A/B tests between ad variants.

Single Go binary, embedded SQLite, credentials from adpilot.yaml or
ADPILOT_ environment variables. Run 'adpilot init' to set up.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("ADPILOT_DB_PATH", "./adpilot.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./adpilot.yaml)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
