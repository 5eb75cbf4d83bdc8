package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
)

// ProjectConfigName is looked up from the working directory upwards.
const ProjectConfigName = "courier.toml"

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper

	// configSources records, per dotted key, which file last set it.
	configSources = map[string]SourceInfo{}

	// loadedFiles lists the config files merged into the current instance.
	loadedFiles []string
)

// Load reads the courier configuration. The result is cached until Reset.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	cfg, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path on top of the
// defaults, ignoring every other source.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	return LoadWithViper(v)
}

// LoadedFiles returns the config files merged by the last load, lowest
// precedence first.
func LoadedFiles() []string {
	mu.Lock()
	defer mu.Unlock()
	initViper()
	return append([]string(nil), loadedFiles...)
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
	configSources = map[string]SourceInfo{}
	loadedFiles = nil
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold mu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)

	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// EnvVarName returns the environment variable that overrides key.
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// findProjectConfig walks up from the working directory looking for
// courier.toml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// configCandidates lists config files in precedence order, lowest first.
func configCandidates() []SourceInfo {
	candidates := []SourceInfo{{Source: SourceSystem, Path: "/etc/courier/config.toml"}}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, SourceInfo{Source: SourceUser, Path: filepath.Join(home, ".courier", "am.toml")})
	}
	if project := findProjectConfig(); project != "" {
		candidates = append(candidates, SourceInfo{Source: SourceProject, Path: project})
	}
	return candidates
}

// mergeConfigFiles merges every existing config file into v. Merged values
// sit below environment variables in Viper's precedence.
func mergeConfigFiles(v *viper.Viper) {
	for _, c := range configCandidates() {
		if _, err := os.Stat(c.Path); err != nil {
			continue
		}
		tmp := viper.New()
		tmp.SetConfigFile(c.Path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			logger.Warnw("Skipping unreadable config file", "path", c.Path, "error", err)
			continue
		}
		if err := v.MergeConfigMap(tmp.AllSettings()); err != nil {
			logger.Warnw("Skipping config file", "path", c.Path, "error", err)
			continue
		}
		for _, key := range tmp.AllKeys() {
			configSources[key] = c
		}
		loadedFiles = append(loadedFiles, c.Path)
	}
}
