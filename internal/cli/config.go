package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/bilingo/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create a sample configuration file",
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfgExists {
			fmt.Fprintf(out, "Configuration valid: %s\n", cfgSource)
		} else {
			fmt.Fprintf(out, "No config file found (looked for %s); defaults are valid\n", cfgSource)
		}
		fmt.Fprintf(out, "Work directory: %s\n", cfg.Paths.WorkDir)
		fmt.Fprintf(out, "Transcribe:     %s (%s)\n", cfg.Transcribe.Provider, cfg.Transcribe.Tier)
		fmt.Fprintf(out, "Translate:      %s -> %s (%s)\n", cfg.Translate.Provider, cfg.Translate.TargetLanguage, cfg.Translate.Mode)
		fmt.Fprintf(out, "Store:          %s\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd)

	configInitCmd.Flags().StringP("path", "p", "", "Destination for the configuration file")
	configInitCmd.Flags().Bool("overwrite", false, "Overwrite existing configuration if present")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	targetPath, _ := cmd.Flags().GetString("path")
	overwrite, _ := cmd.Flags().GetBool("overwrite")

	target := strings.TrimSpace(targetPath)
	var err error
	if target == "" {
		target, err = config.DefaultConfigPath()
	} else {
		target, err = config.ExpandPath(target)
	}
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	if !overwrite {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check config path: %w", err)
		}
	}

	if err := config.CreateSample(target); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
	fmt.Fprintln(out, "Set OPENAI_API_KEY, GEMINI_API_KEY or ANTHROPIC_API_KEY for the providers you use.")
	return nil
}
