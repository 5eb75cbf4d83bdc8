package am

import "github.com/spf13/viper"

const (
	// DefaultPort is the HTTP port when server.port is unset.
	DefaultPort = 8787

	// DefaultBrokerURL is the public QStash endpoint.
	DefaultBrokerURL = "https://qstash.upstash.io"

	// DefaultDirPermissions is used for ~/.courier.
	DefaultDirPermissions = 0o755

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "COURIER"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.admin_rate_per_minute", 60)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("cache.url", "")

	v.SetDefault("broker.url", DefaultBrokerURL)
	v.SetDefault("broker.token", "")
	v.SetDefault("broker.destination_url", "")
	v.SetDefault("broker.current_signing_key", "")
	v.SetDefault("broker.next_signing_key", "")
	v.SetDefault("broker.timeout_seconds", 30)
	v.SetDefault("broker.allow_private_networks", false)

	v.SetDefault("database.path", "courier.db")

	v.SetDefault("log.json", false)
}

// sensitiveKeys are masked by Redacted and bound to explicit env vars.
var sensitiveKeys = []string{
	"server.admin_token",
	"cache.url",
	"broker.token",
	"broker.current_signing_key",
	"broker.next_signing_key",
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	for _, key := range sensitiveKeys {
		_ = v.BindEnv(key, EnvVarName(key))
	}
}
