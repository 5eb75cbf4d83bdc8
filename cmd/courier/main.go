package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/courier/am"
	"github.com/teranos/courier/cmd/courier/commands"
	"github.com/teranos/courier/logger"
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "courier - background jobs over a message broker",
	Long: `courier - background jobs over a message broker.

courier hands jobs to an external broker, receives the broker's signed
deliveries on /jobs-webhook and runs them. Recurring jobs are cron
schedules kept at the broker.

Available commands:
  server    - Start the webhook receiver and admin API
  jobs      - List the jobs this deployment can run
  enqueue   - Hand a job to the broker
  cleanup   - Enqueue every maintenance job
  schedule  - Manage broker cron schedules
  send      - Deliver a signed job straight to a running server
  am        - Show configuration

Examples:
  courier server -v
  courier enqueue kv.cleanup.pkce
  courier schedule add kv.cleanup.mcp "0 3 * * *"
  courier am show --sources`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Keep 'am show' output clean for redirection.
		if cmd.Name() == "show" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs := false
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
		if err := logger.InitializeWithLevel(jsonLogs, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v info, -vv debug)")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.EnqueueCmd)
	rootCmd.AddCommand(commands.CleanupCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.SendCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
