package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/signalsfoundry/marslink-sim/internal/logging"
	"github.com/signalsfoundry/marslink-sim/internal/observability"
	"github.com/signalsfoundry/marslink-sim/timectrl"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MARSLINK_FEED_WSADDR.
const EnvPrefix = "MARSLINK"

// DefaultConfigName is the file searched for when no explicit path is given.
const DefaultConfigName = "marslink"

// SimConfig controls the frame loop.
type SimConfig struct {
	Mode     string        `mapstructure:"mode"`
	Duration time.Duration `mapstructure:"duration"`
	Scenario string        `mapstructure:"scenario"`
	Seed     uint64        `mapstructure:"seed"`
}

// FeedConfig holds listen addresses of the frame feed surfaces. An empty
// address disables that surface.
type FeedConfig struct {
	WSAddr   string `mapstructure:"wsAddr"`
	GRPCAddr string `mapstructure:"grpcAddr"`
}

// MetricsConfig holds the Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"serviceName"`
	SampleRatio float64 `mapstructure:"sampleRatio"`
}

// Config is the resolved process configuration.
type Config struct {
	LogLevel   string        `mapstructure:"logLevel"`
	LogFormat  string        `mapstructure:"logFormat"`
	LogBackend string        `mapstructure:"logBackend"`
	Sim        SimConfig     `mapstructure:"sim"`
	Feed       FeedConfig    `mapstructure:"feed"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
	Tracing    TracingConfig `mapstructure:"tracing"`
}

// Options selects where configuration is read from.
type Options struct {
	// File is an explicit config file; it must exist when set.
	File string
	// Dirs are searched for marslink.{yaml,json,toml} when File is empty.
	Dirs []string
	// EnvFile is a dotenv file loaded before the environment is read.
	// A missing file is ignored.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
	v.SetDefault("logBackend", "slog")

	v.SetDefault("sim.mode", "realtime")
	v.SetDefault("sim.duration", time.Duration(0))
	v.SetDefault("sim.scenario", "")
	v.SetDefault("sim.seed", 0)

	v.SetDefault("feed.wsAddr", ":8080")
	v.SetDefault("feed.grpcAddr", ":50051")

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.serviceName", observability.DefaultServiceName)
	v.SetDefault("tracing.sampleRatio", 1.0)
}

// Load resolves defaults, the optional config file, the dotenv file, and
// MARSLINK_* environment overrides, in increasing precedence.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		for _, dir := range opts.Dirs {
			v.AddConfigPath(dir)
		}
		if len(opts.Dirs) > 0 {
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("error reading config file: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the process cannot act on.
func (c *Config) Validate() error {
	if _, ok := timectrl.ParseMode(c.Sim.Mode); !ok {
		return fmt.Errorf("sim.mode %q: want realtime or accelerated", c.Sim.Mode)
	}
	if c.Sim.Duration < 0 {
		return fmt.Errorf("sim.duration must not be negative")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sampleRatio %v out of [0,1]", c.Tracing.SampleRatio)
	}
	if _, err := observability.ParseExporter(c.Tracing.Exporter); err != nil {
		return fmt.Errorf("tracing.exporter: %w", err)
	}
	return nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:     c.LogLevel,
		Format:    c.LogFormat,
		Backend:   c.LogBackend,
		AddSource: true,
	}
}

// TracingSettings returns the tracing configuration. The scenario path and
// run mode are attached as resource attributes.
func (c *Config) TracingSettings() observability.TracingConfig {
	exporter, err := observability.ParseExporter(c.Tracing.Exporter)
	if err != nil {
		exporter = observability.Exporter(strings.ToLower(c.Tracing.Exporter))
	}
	scenario := c.Sim.Scenario
	if scenario == "" {
		scenario = "default"
	}
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    string(exporter),
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
		Attributes: map[string]string{
			"marslink.scenario": scenario,
			"marslink.mode":     modeName(c.Sim.Mode),
		},
	}
}

func modeName(s string) string {
	m, _ := timectrl.ParseMode(s)
	return m.String()
}
