package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/courier/am"
	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/pulse/jobs"
	"github.com/teranos/courier/server"
)

// ServerCmd starts the webhook receiver and admin API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the webhook receiver and admin API",
	Long: `Start the courier HTTP server.

Routes:
  POST /jobs-webhook          signed job deliveries from the broker
  GET  /health                liveness and cache reachability
  /api/jobs/*                 admin API, guarded by server.admin_token

Signing keys are re-read when a config file changes, so key rotation does
not need a restart.`,
	RunE: runServer,
}

var serverPort int

func init() {
	ServerCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Port to listen on (overrides server.port)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if err := cfg.RequireSigningKeys(); err != nil {
		return err
	}

	log := logger.ComponentLogger("server")

	comps, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	deps := server.Deps{
		Dispatcher: jobs.NewDispatcher(comps.Registry, logger.ComponentLogger("dispatch")),
	}
	if comps.Cache != nil {
		deps.Cache = comps.Cache
	} else {
		log.Warnw("cache.url not set, key-value cleanup jobs are disabled")
	}

	brokerClient, err := newBrokerClient(cfg)
	if err != nil {
		// The webhook still works without publish access; only the admin
		// enqueue and schedule routes need it.
		log.Warnw("Broker API not configured, admin enqueue and schedules are disabled", "error", err)
	} else {
		deps.Enqueuer = brokerClient
		deps.Schedules = newScheduleManager(brokerClient, comps.Registry)
	}

	verifier := broker.NewVerifier(cfg.Broker.CurrentSigningKey, cfg.Broker.NextSigningKey, cfg.Broker.DestinationURL)
	deps.Verifier = verifier

	srv, err := server.New(server.Config{
		AdminToken:         cfg.Server.AdminToken,
		AdminRatePerMinute: cfg.Server.AdminRatePerMinute,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
	}, deps, log)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	if files := am.LoadedFiles(); len(files) > 0 {
		watcher, err := am.NewConfigWatcher(files...)
		if err != nil {
			log.Warnw("Config hot reload unavailable", "error", err)
		} else {
			watcher.OnReload(func(next *am.Config) error {
				if err := next.RequireSigningKeys(); err != nil {
					return err
				}
				verifier.SetKeys(next.Broker.CurrentSigningKey, next.Broker.NextSigningKey)
				log.Infow("Signing keys reloaded")
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	printStartupBanner(cfg, comps.Registry.Names())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(cfg.Server.Port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server stopped unexpectedly")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop(ctx)
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}
