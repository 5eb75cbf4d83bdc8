package commands

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/courier/am"
	"github.com/teranos/courier/auth"
	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/cache"
	"github.com/teranos/courier/db"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/internal/httpclient"
	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/pulse/jobs"
	"github.com/teranos/courier/pulse/schedule"
)

// loadConfig loads and validates the configuration.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// components are the pieces shared by the server and the CLI commands.
// Cache and Database are nil when not configured.
type components struct {
	Cache    *cache.Client
	Database *sql.DB
	Registry *jobs.Registry
}

func (c *components) Close() {
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.Database != nil {
		c.Database.Close()
	}
}

// openComponents connects the optional stores and registers the built-in
// jobs that have their stores available.
func openComponents(cfg *am.Config) (*components, error) {
	c := &components{Registry: jobs.NewRegistry(logger.ComponentLogger("jobs"))}
	deps := jobs.BuiltinDeps{}

	if cfg.Cache.URL != "" {
		client, err := cache.New(cfg.Cache.URL, cache.WithLogger(logger.ComponentLogger("cache")))
		if err != nil {
			return nil, err
		}
		c.Cache = client
		deps.Cache = client
	}

	if cfg.Database.Path != "" {
		database, err := db.OpenWithMigrations(cfg.Database.Path, logger.ComponentLogger("db"))
		if err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
		}
		c.Database = database
		deps.Sessions = auth.NewStore(database)
	}

	jobs.RegisterBuiltins(c.Registry, deps)
	return c, nil
}

// newBrokerClient builds the broker client from configuration.
func newBrokerClient(cfg *am.Config) (*broker.Client, error) {
	if err := cfg.RequireBroker(); err != nil {
		return nil, err
	}

	var opts []httpclient.Option
	if cfg.Broker.AllowPrivateNetworks {
		opts = append(opts, httpclient.AllowPrivateNetworks())
	}
	httpClient := httpclient.New(time.Duration(cfg.Broker.TimeoutSeconds)*time.Second, opts...)

	return broker.New(broker.Config{
		URL:            cfg.Broker.URL,
		Token:          cfg.Broker.Token,
		DestinationURL: cfg.Broker.DestinationURL,
	},
		broker.WithHTTPClient(httpClient),
		broker.WithLogger(logger.ComponentLogger("broker")),
	)
}

// newScheduleManager builds a schedule manager that validates job names
// against registry.
func newScheduleManager(client *broker.Client, registry *jobs.Registry) *schedule.Manager {
	return schedule.NewManager(client,
		schedule.WithRegistry(registry),
		schedule.WithLogger(logger.ComponentLogger("schedule")),
	)
}

// parsePayload parses an optional JSON payload argument.
func parsePayload(args []string) (json.RawMessage, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, nil
	}
	if !json.Valid([]byte(args[0])) {
		return nil, errors.WithHint(errors.Newf("payload is not valid JSON: %s", args[0]),
			`quote the payload, e.g. '{"limit": 10}'`)
	}
	return json.RawMessage(args[0]), nil
}
