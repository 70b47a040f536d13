// Package config loads javafmtd settings from defaults, an optional YAML
// file, JAVAFMTD_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"javafmtd/internal/formatter"
	"javafmtd/internal/launcher"
	"javafmtd/internal/probe"
	"javafmtd/internal/registry"
	"javafmtd/internal/services"
	"javafmtd/internal/state/paths"
)

const EnvPrefix = "javafmtd"

const (
	BackendService = "service"
	BackendOneShot = "oneshot"
)

type Config struct {
	Listen      string          `mapstructure:"listen"`
	StateDir    string          `mapstructure:"state_dir"`
	APIValidate bool            `mapstructure:"api_validate"`
	Service     ServiceConfig   `mapstructure:"service"`
	Client      ClientConfig    `mapstructure:"client"`
	Formatter   FormatterConfig `mapstructure:"formatter"`
}

// ServiceConfig covers discovery, launch and the liveness loop.
type ServiceConfig struct {
	Java              string        `mapstructure:"java"`
	JavaArgs          []string      `mapstructure:"java_args"`
	Jar               string        `mapstructure:"jar"`
	Marker            string        `mapstructure:"marker"`
	InitialPort       int           `mapstructure:"initial_port"`
	PortRangeStart    int           `mapstructure:"port_range_start"`
	PortRangeEnd      int           `mapstructure:"port_range_end"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
	StrictReadiness   bool          `mapstructure:"strict_readiness"`
}

type ClientConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
}

type FormatterConfig struct {
	Backend    string            `mapstructure:"backend"`
	OneShotJar string            `mapstructure:"oneshot_jar"`
	Languages  map[string]string `mapstructure:"languages"`
}

// SetDefaults registers every key so environment overrides resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", "127.0.0.1:7312")
	v.SetDefault("state_dir", "")
	v.SetDefault("api_validate", false)

	v.SetDefault("service.java", "java")
	v.SetDefault("service.java_args", []string{})
	v.SetDefault("service.jar", "")
	v.SetDefault("service.marker", "")
	v.SetDefault("service.initial_port", registry.DefaultPort)
	v.SetDefault("service.port_range_start", services.DefaultPortRange.Start)
	v.SetDefault("service.port_range_end", services.DefaultPortRange.End)
	v.SetDefault("service.heartbeat_interval", registry.DefaultInterval)
	v.SetDefault("service.ready_timeout", launcher.DefaultReadyTimeout)
	v.SetDefault("service.strict_readiness", false)

	v.SetDefault("client.request_timeout", time.Duration(0))
	v.SetDefault("client.health_timeout", 5*time.Second)
	v.SetDefault("client.max_retries", 0)
	v.SetDefault("client.retry_interval", 500*time.Millisecond)

	v.SetDefault("formatter.backend", BackendService)
	v.SetDefault("formatter.oneshot_jar", "")
	langs := map[string]string{}
	for id, mode := range formatter.DefaultLanguages() {
		langs[id] = string(mode)
	}
	v.SetDefault("formatter.languages", langs)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges the YAML file at path into v. An empty path looks for
// config.yaml in dir and tolerates its absence.
func ReadFile(v *viper.Viper, path, dir string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes and validates v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic("config: invalid defaults: " + err.Error())
	}
	return cfg
}

// PortRange returns the launch port range.
func (c Config) PortRange() services.PortRange {
	return services.PortRange{Start: c.Service.PortRangeStart, End: c.Service.PortRangeEnd}
}

// ServiceJar is the jar launched for the format service.
func (c Config) ServiceJar() string {
	if c.Service.Jar != "" {
		return c.Service.Jar
	}
	return paths.DefaultServiceJar()
}

// ServiceMarker is the command-line substring that identifies a running
// format service. Unset, it is the base name of ServiceJar so that a
// service launched from a custom jar is rediscovered.
func (c Config) ServiceMarker() string {
	if m := strings.TrimSpace(c.Service.Marker); m != "" {
		return m
	}
	if base := filepath.Base(c.ServiceJar()); base != "." && base != string(filepath.Separator) {
		return base
	}
	return probe.DefaultMarker
}

// LanguageModes converts the language table for the provider.
func (c Config) LanguageModes() map[string]formatter.Mode {
	out := make(map[string]formatter.Mode, len(c.Formatter.Languages))
	for id, mode := range c.Formatter.Languages {
		out[id] = formatter.Mode(mode)
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if err := c.PortRange().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("service port range: %w", err))
	}
	if c.Service.InitialPort < 1 || c.Service.InitialPort > 65535 {
		errs = append(errs, fmt.Errorf("service.initial_port %d out of range", c.Service.InitialPort))
	}
	if c.Service.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("service.heartbeat_interval must be positive"))
	}
	if c.Service.ReadyTimeout <= 0 {
		errs = append(errs, errors.New("service.ready_timeout must be positive"))
	}
	if c.Client.RequestTimeout < 0 || c.Client.HealthTimeout < 0 || c.Client.RetryInterval < 0 {
		errs = append(errs, errors.New("client timeouts must not be negative"))
	}
	switch c.Formatter.Backend {
	case BackendService, BackendOneShot:
	default:
		errs = append(errs, fmt.Errorf("formatter.backend %q must be %q or %q", c.Formatter.Backend, BackendService, BackendOneShot))
	}
	for id, mode := range c.Formatter.Languages {
		switch formatter.Mode(mode) {
		case formatter.ModeDocument, formatter.ModeEmbedded:
		default:
			errs = append(errs, fmt.Errorf("formatter.languages.%s: unknown mode %q", id, mode))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Dump renders cfg as YAML with durations in their string form.
func Dump(cfg Config) ([]byte, error) {
	view := map[string]any{
		"listen":       cfg.Listen,
		"state_dir":    cfg.StateDir,
		"api_validate": cfg.APIValidate,
		"service": map[string]any{
			"java":               cfg.Service.Java,
			"java_args":          cfg.Service.JavaArgs,
			"jar":                cfg.Service.Jar,
			"marker":             cfg.ServiceMarker(),
			"initial_port":       cfg.Service.InitialPort,
			"port_range_start":   cfg.Service.PortRangeStart,
			"port_range_end":     cfg.Service.PortRangeEnd,
			"heartbeat_interval": cfg.Service.HeartbeatInterval.String(),
			"ready_timeout":      cfg.Service.ReadyTimeout.String(),
			"strict_readiness":   cfg.Service.StrictReadiness,
		},
		"client": map[string]any{
			"request_timeout": cfg.Client.RequestTimeout.String(),
			"health_timeout":  cfg.Client.HealthTimeout.String(),
			"max_retries":     cfg.Client.MaxRetries,
			"retry_interval":  cfg.Client.RetryInterval.String(),
		},
		"formatter": map[string]any{
			"backend":     cfg.Formatter.Backend,
			"oneshot_jar": cfg.Formatter.OneShotJar,
			"languages":   cfg.Formatter.Languages,
		},
	}
	return yaml.Marshal(view)
}
