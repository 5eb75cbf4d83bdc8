// Package am ("as memory") loads courier's configuration: built-in
// defaults, TOML files from system, user and project locations, and
// COURIER_* environment variables, in increasing order of precedence.
package am

// Config is the complete courier configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" toml:"server" yaml:"server"`
	Cache    CacheConfig    `mapstructure:"cache" toml:"cache" yaml:"cache"`
	Broker   BrokerConfig   `mapstructure:"broker" toml:"broker" yaml:"broker"`
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database"`
	Log      LogConfig      `mapstructure:"log" toml:"log" yaml:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port" toml:"port" yaml:"port"`
	// AdminToken guards /api/jobs/*. Empty leaves the admin API open.
	AdminToken         string `mapstructure:"admin_token" toml:"admin_token" yaml:"admin_token"`
	AdminRatePerMinute int    `mapstructure:"admin_rate_per_minute" toml:"admin_rate_per_minute" yaml:"admin_rate_per_minute"`
	MaxBodyBytes       int64  `mapstructure:"max_body_bytes" toml:"max_body_bytes" yaml:"max_body_bytes"`
}

// CacheConfig configures the key-value store.
type CacheConfig struct {
	// URL is a redis:// or rediss:// URL. Empty disables the cache and the
	// key-value cleanup jobs.
	URL string `mapstructure:"url" toml:"url" yaml:"url"`
}

// BrokerConfig configures the external message broker.
type BrokerConfig struct {
	URL               string `mapstructure:"url" toml:"url" yaml:"url"`
	Token             string `mapstructure:"token" toml:"token" yaml:"token"`
	DestinationURL    string `mapstructure:"destination_url" toml:"destination_url" yaml:"destination_url"`
	CurrentSigningKey string `mapstructure:"current_signing_key" toml:"current_signing_key" yaml:"current_signing_key"`
	NextSigningKey    string `mapstructure:"next_signing_key" toml:"next_signing_key" yaml:"next_signing_key"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds"`
	// AllowPrivateNetworks lets the broker URL point at localhost or a
	// private address, e.g. a local broker dev server.
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks" toml:"allow_private_networks" yaml:"allow_private_networks"`
}

// DatabaseConfig configures the SQLite session database.
type DatabaseConfig struct {
	// Path to the database file. Empty disables the session cleanup job.
	Path string `mapstructure:"path" toml:"path" yaml:"path"`
}

// LogConfig configures logging output.
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" yaml:"json"`
}
