package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mgpai22/bilingo/internal/config"
	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/logging"
)

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	cfgSource  string
	cfgExists  bool
	logger     *logging.Logger
)

// commands annotated with skipConfig run without loading the config file
const skipConfig = "skip-config"

var rootCmd = &cobra.Command{
	Use:   "bilingo",
	Short: "Bilingual English and Traditional Chinese subtitle pipeline",
	Long: `Bilingo turns lesson audio or video into bilingual subtitles.

Each run transcribes the media, cleans and re-segments the transcript into
sentences, translates every sentence, and writes an SRT with the English line
above the Chinese line. Finished tracks are stored one row per cue so lesson
tooling can look them up by video id.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] == "true" {
			logger = logging.NewLogger(verbose)
			return nil
		}
		loaded, resolved, exists, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg, cfgSource, cfgExists = loaded, resolved, exists

		l, err := logging.New(logging.Options{
			Verbose:    verbose || cfg.Logging.Verbose,
			JSON:       cfg.Logging.JSON,
			FilePath:   cfg.Paths.LogFile,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which in-flight runs observe at their next stage boundary.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// ExitCode maps an error onto the process exit status.
func ExitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	switch failure.Kind(err) {
	case "":
		return 0
	case "input":
		return 2
	case "cancelled":
		return 130
	default:
		return 1
	}
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", "", "Configuration file path")
}
