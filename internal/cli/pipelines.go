package cli

import (
	"github.com/spf13/cobra"

	"MarketScanner/internal/app"
)

func newIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Scan configured sources and persist normalized listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, app.PipelineIngest)
		},
	}
}

func newAssessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "assess",
		Short: "Score stored listings and record assessments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, app.PipelineAssess)
		},
	}
}

func newNotifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Send alerts for actionable listings, at most once each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, app.PipelineNotify)
		},
	}
}
