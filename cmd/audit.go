package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rawimage/pkg/app/audit"
)

var (
	auditSession        string
	auditLatest         bool
	auditIncludeRetried bool
)

var auditCmd = &cobra.Command{
	Use:   "audit <logfile>",
	Short: "Summarize an operation log and list bad sectors",
	Long: `Parse an operation log written by the image command and report, per
session, how many units were copied, retried or unreadable, with the image
offset of every unreadable sector.

Examples:
  # Report every session in the default log
  go-rawimage audit rawhdd.log

  # Only the last run, as JSON, including recovered sectors
  go-rawimage audit rawhdd.log --latest --retried -o json`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAudit(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditSession, "session", "", "session ID or prefix to report")
	auditCmd.Flags().BoolVar(&auditLatest, "latest", false, "report only the last session")
	auditCmd.Flags().BoolVar(&auditIncludeRetried, "retried", false, "also list sectors recovered after retries")

	auditCmd.MarkFlagsMutuallyExclusive("session", "latest")
}

func runAudit(cmd *cobra.Command, logFile string) error {
	ctx := newAppContext(cmd)
	defer ctx.Logger.Sync()

	request := &audit.Request{
		LogFile:        logFile,
		Session:        auditSession,
		Latest:         auditLatest,
		IncludeRetried: auditIncludeRetried,
	}

	response, err := audit.Handle(ctx, request)
	if err != nil {
		return err
	}

	return audit.FormatOutput(ctx.Out, response, ctx.OutputFormat)
}
