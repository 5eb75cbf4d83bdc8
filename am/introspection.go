package am

import (
	"os"
	"slices"
	"sort"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/courier/config.toml
	SourceUser        ConfigSource = "user"        // ~/.courier/am.toml
	SourceProject     ConfigSource = "project"     // courier.toml found upwards from cwd
	SourceEnvironment ConfigSource = "environment" // COURIER_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"`
}

// Introspect lists every effective setting with the source that supplied
// it. Sensitive values are masked.
func Introspect() []SettingInfo {
	v := GetViper()

	mu.Lock()
	sources := make(map[string]SourceInfo, len(configSources))
	for k, s := range configSources {
		sources[k] = s
	}
	mu.Unlock()

	keys := v.AllKeys()
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if s, ok := sources[key]; ok {
			info = s
		}
		if env := EnvVarName(key); os.Getenv(env) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: env}
		}

		value := v.Get(key)
		if isSensitive(key) {
			value = maskSecret(v.GetString(key))
		}
		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return settings
}

func isSensitive(key string) bool {
	return slices.Contains(sensitiveKeys, key)
}
