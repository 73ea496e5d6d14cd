// SPDX-License-Identifier: MPL-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xec-sh/xec/internal/discovery"
	"github.com/xec-sh/xec/pkg/types"
)

// LoadOptions parameterizes Load's merge-layer sources.
type LoadOptions struct {
	// ConfigPath, if set, is used verbatim instead of running discovery
	// (the CLI's --config / XEC_CONFIG override).
	ConfigPath string

	// Profile, if set, names the active profile layer (--profile /
	// XEC_PROFILE). Empty means no profile is applied.
	Profile string

	// WorkDir is the directory discovery walks upward from; empty uses
	// the process's current working directory.
	WorkDir string
}

// Load reads, merges, and validates the configuration in layer order:
// built-in defaults -> $HOME/.xec/config.yaml -> project config
// (discovered or explicit) -> XEC_* environment variables -> active
// profile. CLI-flag overrides are the caller's responsibility, applied
// after Load returns (they are the final, highest-precedence layer).
func Load(opts LoadOptions) (*Config, error) {
	raw, err := structToMap(builtinDefaults())
	if err != nil {
		return nil, fmt.Errorf("config: encoding built-in defaults: %w", err)
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		raw, err = mergeLayerFile(raw, filepath.Join(home, ".xec", "config.yaml"))
		if err != nil {
			return nil, err
		}
	}

	projectPath := opts.ConfigPath
	if projectPath == "" {
		projectPath = os.Getenv("XEC_CONFIG")
	}
	if projectPath == "" {
		wd := opts.WorkDir
		if wd == "" {
			wd, err = os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("config: resolving working directory: %w", err)
			}
		}
		projectPath, err = discovery.Find(wd)
		if err != nil {
			return nil, err
		}
	}
	if projectPath != "" {
		raw, err = mergeLayerFile(raw, projectPath)
		if err != nil {
			return nil, err
		}
	}

	applyEnvLayer(raw)

	cfg, err := decode(raw)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = projectPath

	profileName := opts.Profile
	if profileName == "" {
		profileName = os.Getenv("XEC_PROFILE")
	}
	if profileName != "" {
		effective, err := resolveProfile(cfg.Profiles, profileName)
		if err != nil {
			return nil, err
		}
		applyProfileToConfig(cfg, effective)
	}

	return cfg, nil
}

// structToMap round-trips v through YAML so its struct tags determine the
// raw map shape that mergeLayerFile's file-sourced maps are merged against.
func structToMap(v *Config) (map[string]any, error) {
	buf, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeLayerFile reads path as a YAML document and merges it onto dst
// (env maps deep, everything else shallow). A missing file is
// not an error: absence of an optional layer is expected.
func mergeLayerFile(dst map[string]any, path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dst, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	layer := map[string]any{}
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return mergeMaps(dst, layer), nil
}

// applyEnvLayer applies the named XEC_* environment variables onto the
// `defaults` section of raw as their own merge layer. Unlike the YAML
// layers, this is a fixed set of
// named variables, not a generic nested-key binding.
func applyEnvLayer(raw map[string]any) {
	defaults, _ := raw["defaults"].(map[string]any)
	if defaults == nil {
		defaults = map[string]any{}
		raw["defaults"] = defaults
	}

	if v := os.Getenv("XEC_TIMEOUT"); v != "" {
		defaults["timeout"] = v
	}
	if v := os.Getenv("XEC_SHELL"); v != "" {
		defaults["shell"] = v
	}
	if v := os.Getenv("XEC_CWD"); v != "" {
		defaults["cwd"] = v
	}
}

// decode feeds the fully merged raw map through viper's mapstructure-based
// unmarshal: the preceding merge passes (structToMap/mergeLayerFile) are
// the raw yaml.v3 handling viper's own precedence model can't express
// (the env-only deep merge), but the final typed decode is viper's job.
func decode(raw map[string]any) (*Config, error) {
	buf, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("config: reading merged configuration: %w", err)
	}

	cfg := &Config{}
	hook := mapstructure.ComposeDecodeHookFunc(
		humanDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("config: decoding merged configuration: %w", err)
	}
	return cfg, nil
}

// durationType is the reflect.Type target humanDurationHookFunc matches on.
var durationType = reflect.TypeOf(types.Duration(0))

// humanDurationHookFunc decodes a raw YAML/env value into types.Duration:
// a bare number (whether YAML parsed it as an int/float64, or it
// arrived as an unparsed numeric string from an env var) is milliseconds;
// any other string goes through ParseHumanDuration's unit-suffix parsing.
// mapstructure's own StringToTimeDurationHookFunc is not used here because
// it would interpret a bare number as the std-library's nanosecond unit,
// which contradicts the millisecond rule this schema requires.
func humanDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return ParseHumanDuration(v)
		case int:
			return types.Duration(v) * types.Duration(1_000_000), nil
		case int64:
			return types.Duration(v) * types.Duration(1_000_000), nil
		case float64:
			return types.Duration(int64(v)) * types.Duration(1_000_000), nil
		default:
			return data, nil
		}
	}
}

func applyProfileToConfig(cfg *Config, p Profile) {
	if p.Defaults != nil {
		cfg.Defaults = mergeDefaults(cfg.Defaults, *p.Defaults)
	}
	cfg.Hosts = mergeHostMap(cfg.Hosts, p.Hosts)
	cfg.Containers = mergeContainerMap(cfg.Containers, p.Containers)
	cfg.Pods = mergePodMap(cfg.Pods, p.Pods)
}

// ParseHumanDuration parses a human-unit duration string: a bare
// integer is milliseconds, otherwise the usual "ms"/"s"/"m"/"h" suffixes
// apply (delegated to types.ParseDuration).
func ParseHumanDuration(s string) (types.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.Duration(n) * types.Duration(1_000_000), nil // ms -> ns
	}
	return types.ParseDuration(s)
}
