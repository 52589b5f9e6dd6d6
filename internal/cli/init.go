package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup, writes adpilot.yaml",
	Long: `Walk through the Marketing API credentials and write adpilot.yaml in
the current directory. Values can also come from ADPILOT_ environment
variables instead (ADPILOT_META_ACCESS_TOKEN, ADPILOT_META_AD_ACCOUNT_ID).`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	const path = "adpilot.yaml"
	if _, err := os.Stat(path); err == nil {
		confirm := promptui.Prompt{
			Label:     "adpilot.yaml already exists, overwrite",
			IsConfirm: true,
		}
		if _, err := confirm.Run(); err != nil {
			fmt.Println("Keeping existing config.")
			return nil
		}
	}

	token, err := promptRequired("Meta access token", '*')
	if err != nil {
		return err
	}
	accountID, err := promptRequired("Ad account ID (digits, without act_)", 0)
	if err != nil {
		return err
	}
	apiKey, err := promptOptional("Server API key (empty for open local mode)")
	if err != nil {
		return err
	}

	cfg := map[string]any{
		"app": map[string]any{
			"log_level": "info",
		},
		"meta": map[string]any{
			"access_token":  token,
			"ad_account_id": accountID,
		},
		"server": map[string]any{
			"port":    8080,
			"api_key": apiKey,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  adpilot optimize <campaign-id> --dry-run    preview rule actions")
	fmt.Println("  adpilot abtest create ...                   set up an A/B test")
	fmt.Println("  adpilot serve                               start the HTTP API")
	return nil
}

func promptRequired(label string, mask rune) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Mask:  mask,
		Validate: func(s string) error {
			if s == "" {
				return errors.New("required")
			}
			return nil
		},
	}
	value, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return value, nil
}

func promptOptional(label string) (string, error) {
	prompt := promptui.Prompt{Label: label}
	value, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return value, nil
}
