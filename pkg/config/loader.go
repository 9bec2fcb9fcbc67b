package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName      = ".fillspc"
	configType      = "yaml"
	envPrefix       = "FILLSPC"
	envKeySeparator = "_"
)

// LoadConfig loads configuration from file, env vars and defaults. A
// non-empty configPath must exist; otherwise .fillspc.yaml is searched in
// the working directory and $HOME and its absence is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	viperCfg := viper.New()
	applyDefaults(viperCfg)

	var cfg Config

	// Defaults are plain values; decoding them cannot fail.
	_ = viperCfg.Unmarshal(&cfg)

	return &cfg
}

// defaults seeds every key so environment overrides apply even when no
// config file sets the key.
var defaults = map[string]any{
	"monitoring.components":         DefaultComponents,
	"monitoring.variance_threshold": DefaultVarianceThreshold,
	"monitoring.scaling":            DefaultScaling,
	"monitoring.confidence":         DefaultConfidence,
	"monitoring.t2_method":          DefaultT2Method,
	"monitoring.q_method":           DefaultQMethod,
	"monitoring.joint":              DefaultJoint,
	"monitoring.workers":            DefaultWorkers,
	"monitoring.chunk_size":         DefaultChunkSize,

	"dataset.schema_file":      "",
	"dataset.variables":        []string{},
	"dataset.part_id":          "",
	"dataset.timestamp":        "",
	"dataset.reject_type":      "",
	"dataset.timestamp_layout": "",

	"output.dir":            DefaultOutputDir,
	"output.format":         DefaultOutputFormat,
	"output.compress_model": DefaultCompressModel,
	"output.theme":          DefaultTheme,
	"output.max_rows":       DefaultMaxRows,

	"cache.enabled":  DefaultCacheEnabled,
	"cache.max_size": DefaultCacheMaxSize,

	"server.host":          DefaultServerHost,
	"server.port":          DefaultServerPort,
	"server.read_timeout":  DefaultReadTimeout,
	"server.write_timeout": DefaultWriteTimeout,
	"server.idle_timeout":  DefaultIdleTimeout,

	"logging.level":  DefaultLogLevel,
	"logging.format": DefaultLogFormat,

	"telemetry.environment":   "",
	"telemetry.otlp_endpoint": "",
	"telemetry.otlp_insecure": false,
	"telemetry.prometheus":    DefaultPrometheus,
	"telemetry.sample_ratio":  DefaultSampleRatio,
	"telemetry.debug_trace":   false,
	"telemetry.trace_verbose": false,
}

func applyDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
