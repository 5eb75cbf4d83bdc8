package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/internal/util"
	"github.com/teranos/courier/pulse/jobs"
)

// brokerTimeout bounds a single CLI round trip to the broker.
const brokerTimeout = 30 * time.Second

// JobsCmd lists registered jobs
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the jobs this deployment can run",
	Long: `List the job names registered with the dispatcher.

Which built-in jobs are available depends on configuration:
  kv.cleanup.mcp, kv.cleanup.pkce   need cache.url
  db.cleanup.sessions               needs database.path`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		comps, err := openComponents(cfg)
		if err != nil {
			return err
		}
		defer comps.Close()

		names := comps.Registry.Names()
		if len(names) == 0 {
			pterm.Warning.Println("No jobs registered; set cache.url or database.path")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

// EnqueueCmd hands a job to the broker
var EnqueueCmd = &cobra.Command{
	Use:   "enqueue <job> [payload-json]",
	Short: "Hand a job to the broker",
	Long: `Publish a job to the broker. The broker delivers it to the configured
webhook, retrying on failure.

Examples:
  courier enqueue kv.cleanup.pkce
  courier enqueue report.send '{"user":"u1"}' --delay 60 --retries 5
  courier enqueue db.cleanup.sessions --dedup nightly-2026-10-19`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runEnqueue,
}

var (
	enqueueDelay   int
	enqueueRetries int
	enqueueQueue   string
	enqueueDedup   string
)

func init() {
	EnqueueCmd.Flags().IntVar(&enqueueDelay, "delay", 0, "Delay the first delivery by this many seconds")
	EnqueueCmd.Flags().IntVar(&enqueueRetries, "retries", -1, "Broker redelivery count (default: broker default)")
	EnqueueCmd.Flags().StringVar(&enqueueQueue, "queue", "", "Route through a named broker queue")
	EnqueueCmd.Flags().StringVar(&enqueueDedup, "dedup", "", "Deduplication id")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(args[1:])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newBrokerClient(cfg)
	if err != nil {
		return err
	}

	opts := broker.EnqueueOptions{Queue: enqueueQueue, DeduplicationID: enqueueDedup}
	if cmd.Flags().Changed("delay") {
		opts.DelaySeconds = util.Ptr(enqueueDelay)
	}
	if enqueueRetries >= 0 {
		opts.Retries = util.Ptr(enqueueRetries)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), brokerTimeout)
	defer cancel()

	res, err := client.Enqueue(ctx, jobs.Job{Name: args[0], Payload: payload}, opts)
	if err != nil {
		return err
	}
	if res.Deduplicated {
		pterm.Info.Printf("%s already enqueued (message %s)\n", args[0], res.MessageID)
		return nil
	}
	pterm.Success.Printf("Enqueued %s (message %s)\n", args[0], res.MessageID)
	return nil
}

// CleanupCmd enqueues every maintenance job
var CleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Enqueue every maintenance job",
	Long: `Enqueue the cleanup jobs this deployment has registered. Returns once
the broker has accepted them, not when they have run.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
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

	enqueued, err := broker.EnqueueCleanup(ctx, client, comps.Registry)
	if err != nil {
		return err
	}
	if len(enqueued) == 0 {
		pterm.Warning.Println("No cleanup jobs registered; set cache.url or database.path")
		return nil
	}

	names := make([]string, 0, len(enqueued))
	for name := range enqueued {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pterm.Success.Printf("Enqueued %s (message %s)\n", name, enqueued[name])
	}
	return nil
}
