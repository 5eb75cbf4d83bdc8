package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/courier/internal/util"
	"github.com/teranos/courier/pulse/schedule"
)

// ScheduleCmd manages broker cron schedules
var ScheduleCmd = &cobra.Command{
	Use:     "schedule",
	Aliases: []string{"sched"},
	Short:   "Manage broker cron schedules",
	Long: `Manage recurring jobs. Schedules live at the broker, which publishes
the job to the webhook on every cron tick.

Cron expressions have five fields and may start with CRON_TZ=<zone>.
Descriptors such as @daily and @every 1h are accepted.

Examples:
  courier schedule ls
  courier schedule add kv.cleanup.mcp "0 3 * * *"
  courier schedule add db.cleanup.sessions "CRON_TZ=Europe/Amsterdam 30 2 * * *" --retries 3
  courier schedule replace scd_123 kv.cleanup.pkce "@hourly"
  courier schedule rm scd_123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var scheduleLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List schedules",
	Args:  cobra.NoArgs,
	RunE:  runScheduleLs,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <job> <cron> [payload-json]",
	Short: "Create a schedule",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runScheduleAdd,
}

var scheduleReplaceCmd = &cobra.Command{
	Use:   "replace <id> <job> <cron> [payload-json]",
	Short: "Replace a schedule with a new definition",
	Args:  cobra.RangeArgs(3, 4),
	RunE:  runScheduleReplace,
}

var scheduleRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a schedule",
	Args:    cobra.ExactArgs(1),
	RunE:    runScheduleRm,
}

var (
	scheduleRetries int
	scheduleQueue   string
)

func init() {
	for _, c := range []*cobra.Command{scheduleAddCmd, scheduleReplaceCmd} {
		c.Flags().IntVar(&scheduleRetries, "retries", -1, "Broker redelivery count per run (default: broker default)")
		c.Flags().StringVar(&scheduleQueue, "queue", "", "Route runs through a named broker queue")
	}

	ScheduleCmd.AddCommand(scheduleLsCmd)
	ScheduleCmd.AddCommand(scheduleAddCmd)
	ScheduleCmd.AddCommand(scheduleReplaceCmd)
	ScheduleCmd.AddCommand(scheduleRmCmd)
}

// withScheduleManager runs fn with a manager bound to the configured broker.
func withScheduleManager(cmd *cobra.Command, fn func(ctx context.Context, m *schedule.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	client, err := newBrokerClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), brokerTimeout)
	defer cancel()
	return fn(ctx, newScheduleManager(client, comps.Registry))
}

func runScheduleLs(cmd *cobra.Command, args []string) error {
	return withScheduleManager(cmd, func(ctx context.Context, m *schedule.Manager) error {
		schedules, err := m.List(ctx)
		if err != nil {
			return err
		}
		if len(schedules) == 0 {
			fmt.Println("No schedules")
			return nil
		}
		return renderSchedules(schedules)
	})
}

func renderSchedules(schedules []schedule.Schedule) error {
	data := pterm.TableData{{"ID", "JOB", "CRON", "QUEUE", "RETRIES", "NEXT RUN"}}
	for _, s := range schedules {
		retries := "-"
		if s.Retries != nil {
			retries = strconv.Itoa(*s.Retries)
		}
		next := "paused"
		if s.NextRun != nil {
			next = s.NextRun.Local().Format(time.DateTime)
		}
		data = append(data, []string{s.ID, s.Name, s.Cron, orDash(s.Queue), retries, next})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d schedule(s)\n", len(schedules))
	return nil
}

func scheduleFromArgs(args []string) (schedule.Schedule, error) {
	payload, err := parsePayload(args[2:])
	if err != nil {
		return schedule.Schedule{}, err
	}
	s := schedule.Schedule{Name: args[0], Cron: args[1], Payload: payload, Queue: scheduleQueue}
	if scheduleRetries >= 0 {
		s.Retries = util.Ptr(scheduleRetries)
	}
	return s, nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	s, err := scheduleFromArgs(args)
	if err != nil {
		return err
	}
	return withScheduleManager(cmd, func(ctx context.Context, m *schedule.Manager) error {
		created, err := m.Create(ctx, s)
		if err != nil {
			return err
		}
		printCreated(created)
		return nil
	})
}

func runScheduleReplace(cmd *cobra.Command, args []string) error {
	s, err := scheduleFromArgs(args[1:])
	if err != nil {
		return err
	}
	return withScheduleManager(cmd, func(ctx context.Context, m *schedule.Manager) error {
		created, err := m.Replace(ctx, args[0], s)
		if err != nil {
			return err
		}
		pterm.Info.Printf("Deleted %s\n", args[0])
		printCreated(created)
		return nil
	})
}

func printCreated(s *schedule.Schedule) {
	pterm.Success.Printf("Created schedule %s: %s at %q\n", s.ID, s.Name, s.Cron)
	if s.NextRun != nil {
		fmt.Printf("  Next run: %s\n", s.NextRun.Local().Format(time.DateTime))
	}
}

func runScheduleRm(cmd *cobra.Command, args []string) error {
	return withScheduleManager(cmd, func(ctx context.Context, m *schedule.Manager) error {
		if err := m.Delete(ctx, args[0]); err != nil {
			return err
		}
		pterm.Success.Printf("Deleted schedule %s\n", args[0])
		return nil
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
