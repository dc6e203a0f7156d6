package am

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/samplegen/config.toml
	SourceUser        ConfigSource = "user"        // ~/.samplegen/am.toml
	SourceProject     ConfigSource = "project"     // project am.toml
	SourceEnvironment ConfigSource = "environment" // SAMPLEGEN_* env vars
)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // File path or env var name
}

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string
}

// Introspect reports every effective setting of v with the source that set it.
// paths are the config files in precedence order, lowest first.
func Introspect(v *viper.Viper, paths []string) []SettingInfo {
	sources := make(map[string]SourceInfo)
	for _, path := range paths {
		tmp := viper.New()
		tmp.SetConfigFile(path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			continue
		}
		markSettingsFromSource(tmp.AllSettings(), "", ClassifyPath(path), path, sources)
	}

	var settings []SettingInfo
	flattenSettings(v.AllSettings(), "", func(key string, value interface{}) {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			info = si
		}
		if envKey := envOverride(key); envKey != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}
		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	})
	return settings
}

// markSettingsFromSource records source for every leaf key in settings
func markSettingsFromSource(settings map[string]interface{}, prefix string, source ConfigSource, path string, sourceMap map[string]SourceInfo) {
	flattenSettings(settings, prefix, func(key string, _ interface{}) {
		sourceMap[key] = SourceInfo{Source: source, Path: path}
	})
}

func flattenSettings(settings map[string]interface{}, prefix string, visit func(key string, value interface{})) {
	// Sort keys for deterministic iteration
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := settings[key].(map[string]interface{}); ok {
			flattenSettings(nested, fullKey, visit)
			continue
		}
		visit(fullKey, settings[key])
	}
}

// ClassifyPath names the cascade level a config file path belongs to
func ClassifyPath(path string) ConfigSource {
	switch {
	case strings.HasPrefix(path, "/etc/"):
		return SourceSystem
	case strings.Contains(path, string(os.PathSeparator)+".samplegen"+string(os.PathSeparator)):
		return SourceUser
	default:
		return SourceProject
	}
}

// envOverride returns the environment variable overriding key, if set
func envOverride(key string) string {
	candidates := []string{"SAMPLEGEN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
	if key == "openrouter.api_key" {
		candidates = append(candidates, "OPENROUTER_API_KEY")
	}
	for _, name := range candidates {
		if os.Getenv(name) != "" {
			return name
		}
	}
	return ""
}
