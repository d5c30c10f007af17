// Package cli implements the pipeline selector command line. Each
// subcommand executes exactly one pipeline and exits; repeating runs is the
// job of whatever external trigger invokes the binary.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"MarketScanner/internal/app"
	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/logging"
)

// Exit codes reported to the external trigger.
const (
	ExitCompleted      = 0
	ExitFailed         = 1
	ExitPartialFailure = 2
)

var (
	cfgFile    string
	jsonOutput bool

	// exitCode carries the selected pipeline's terminal status out of RunE.
	exitCode int

	rootCmd = &cobra.Command{
		Use:   "marketscanner",
		Short: "Marketplace listing pipelines",
		Long: `MarketScanner scans marketplace sources for listings, scores them,
and alerts on the ones worth acting on. Run one pipeline per invocation:
ingest, assess, or notify.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $MARKET_SCANNER_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print the run summary as JSON")

	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newAssessCommand())
	rootCmd.AddCommand(newNotifyCommand())
}

// Execute runs the selected pipeline and returns the process exit code:
// 0 for a completed run, 2 for a partial failure, 1 for everything else.
func Execute() int {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitFailed
	}

	return exitCode
}

// runPipeline is the shared body of the three subcommands.
func runPipeline(cmd *cobra.Command, name string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	res, err := application.Run(cmd.Context(), name)
	if err != nil {
		return err
	}

	if err := render(os.Stdout, res, jsonOutput); err != nil {
		return err
	}

	exitCode = statusExitCode(res.Run.Status)
	return nil
}

func statusExitCode(status domain.RunStatus) int {
	switch status {
	case domain.RunCompleted:
		return ExitCompleted
	case domain.RunPartialFailure:
		return ExitPartialFailure
	default:
		return ExitFailed
	}
}
