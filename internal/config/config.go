// Package config loads endpoint definitions, global defaults and transport
// settings from a YAML file and the REQCONF_* environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/reqconf/internal/constants"
	"github.com/fivetwenty-io/reqconf/internal/datasource"
	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// Config is the decoded configuration file.
type Config struct {
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	Output    string `json:"output"             yaml:"output"             mapstructure:"output"`
	Verbose   bool   `json:"verbose"            yaml:"verbose"            mapstructure:"verbose"`
	RequestID bool   `json:"request_id"         yaml:"request_id"         mapstructure:"request_id"`
	Token     string `json:"token,omitempty"    yaml:"token,omitempty"    mapstructure:"token"`

	Endpoints []reqconf.Endpoint `json:"endpoints,omitempty" yaml:"endpoints,omitempty" mapstructure:"endpoints"`
	Globals   []GlobalDefaults   `json:"globals,omitempty"   yaml:"globals,omitempty"   mapstructure:"globals"`
	Sources   []datasource.Entry `json:"sources,omitempty"   yaml:"sources,omitempty"   mapstructure:"sources"`

	// SourcesFile names a YAML file holding a "sources" list. Inline
	// Sources entries override it key by key.
	SourcesFile string `json:"sources_file,omitempty" yaml:"sources_file,omitempty" mapstructure:"sources_file"`

	HTTP           HTTPConfig           `json:"http"            yaml:"http"            mapstructure:"http"`
	NATS           NATSConfig           `json:"nats"            yaml:"nats"            mapstructure:"nats"`
	RateLimit      RateLimitConfig      `json:"rate_limit"      yaml:"rate_limit"      mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// GlobalDefaults binds registry defaults to an endpoint key, or "*" for all.
type GlobalDefaults struct {
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	reqconf.Defaults `json:",inline" yaml:",inline" mapstructure:",squash"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Timeout      time.Duration `json:"timeout"              yaml:"timeout"              mapstructure:"timeout"`
	RetryMax     int           `json:"retry_max"            yaml:"retry_max"            mapstructure:"retry_max"`
	RetryWaitMin time.Duration `json:"retry_wait_min"       yaml:"retry_wait_min"       mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration `json:"retry_wait_max"       yaml:"retry_wait_max"       mapstructure:"retry_wait_max"`
	UserAgent    string        `json:"user_agent,omitempty" yaml:"user_agent,omitempty" mapstructure:"user_agent"`
	Debug        bool          `json:"debug"                yaml:"debug"                mapstructure:"debug"`
}

// NATSConfig points at a JetStream key-value bucket of data sources.
type NATSConfig struct {
	URL    string `json:"url,omitempty"    yaml:"url,omitempty"    mapstructure:"url"`
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty" mapstructure:"bucket"`
}

// Enabled reports whether a NATS data source is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != "" || n.Bucket != ""
}

// RateLimitConfig throttles every call when RequestsPerSecond is positive.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `json:"burst"               yaml:"burst"               mapstructure:"burst"`
}

// CircuitBreakerConfig enables a circuit breaker across every endpoint.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled"           yaml:"enabled"           mapstructure:"enabled"`
	Threshold        int           `json:"threshold"         yaml:"threshold"         mapstructure:"threshold"`
	Timeout          time.Duration `json:"timeout"           yaml:"timeout"           mapstructure:"timeout"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold" mapstructure:"success_threshold"`
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	for index, endpoint := range c.Endpoints {
		if endpoint.Key == "" {
			return fmt.Errorf("endpoint %d: %w", index, reqconf.ErrEndpointKeyRequired)
		}

		if endpoint.Method == "" {
			return fmt.Errorf("endpoint %s: %w", endpoint.Key, constants.ErrEndpointMethodNeeded)
		}
	}

	for index, global := range c.Globals {
		if global.Endpoint == "" {
			return fmt.Errorf("globals %d: %w", index, reqconf.ErrEndpointKeyRequired)
		}
	}

	for _, duration := range []time.Duration{c.HTTP.Timeout, c.HTTP.RetryWaitMin, c.HTTP.RetryWaitMax, c.CircuitBreaker.Timeout} {
		if duration < 0 {
			return fmt.Errorf("%w: %s", constants.ErrInvalidDuration, duration)
		}
	}

	if c.NATS.Enabled() {
		if c.NATS.URL == "" {
			return constants.ErrNATSURLRequired
		}

		if c.NATS.Bucket == "" {
			return constants.ErrNATSBucketRequired
		}
	}

	return nil
}

// Apply defines every endpoint on client and publishes the global defaults
// to its registry.
func (c *Config) Apply(client *reqconf.Client) error {
	for _, endpoint := range c.Endpoints {
		err := client.Define(endpoint)
		if err != nil {
			return fmt.Errorf("failed to define endpoint: %w", err)
		}
	}

	for _, global := range c.Globals {
		err := client.Registry().SetGlobalDefaults(global.Endpoint, global.Defaults)
		if err != nil {
			return fmt.Errorf("failed to set global defaults for %s: %w", global.Endpoint, err)
		}
	}

	return nil
}

// Reload applies next on top of previous. Endpoints that next no longer
// defines are undefined, and global defaults it no longer carries are reset.
func Reload(client *reqconf.Client, previous, next *Config) error {
	err := next.Apply(client)
	if err != nil {
		return err
	}

	if previous == nil {
		return nil
	}

	defined := make(map[string]struct{}, len(next.Endpoints))
	for _, endpoint := range next.Endpoints {
		defined[endpoint.Key] = struct{}{}
	}

	for _, endpoint := range previous.Endpoints {
		if _, ok := defined[endpoint.Key]; !ok {
			client.Undefine(endpoint.Key)
		}
	}

	kept := make(map[string]struct{}, len(next.Globals))
	for _, global := range next.Globals {
		kept[global.Endpoint] = struct{}{}
	}

	for _, global := range previous.Globals {
		if _, ok := kept[global.Endpoint]; ok {
			continue
		}

		err := client.Registry().SetGlobalDefaults(global.Endpoint, reqconf.Defaults{})
		if err != nil {
			return fmt.Errorf("failed to reset global defaults for %s: %w", global.Endpoint, err)
		}
	}

	return nil
}

// Loader reads Config through viper.
type Loader struct {
	viper  *viper.Viper
	logger reqconf.Logger
}

// NewLoader wraps v. Configure should have been applied to it.
func NewLoader(v *viper.Viper, logger reqconf.Logger) *Loader {
	if logger == nil {
		logger = reqconf.NoopLogger{}
	}

	return &Loader{
		viper:  v,
		logger: logger,
	}
}

// NewFileLoader creates a loader with its own viper instance reading path,
// or the default location when path is empty.
func NewFileLoader(path string, logger reqconf.Logger) *Loader {
	v := viper.New()
	Configure(v, path)

	return NewLoader(v, logger)
}

// Configure points v at path (or $HOME/.reqconf/config.yml), binds the
// REQCONF_ environment prefix and registers defaults.
func Configure(v *viper.Viper, path string) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, constants.ConfigDirName))
		}

		v.AddConfigPath(".")
		v.SetConfigType(constants.ConfigFileType)
		v.SetConfigName(constants.ConfigFileName)
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_url", "")
	v.SetDefault("output", constants.FormatTable)
	v.SetDefault("verbose", false)
	v.SetDefault("request_id", false)
	v.SetDefault("token", "")
	v.SetDefault("http.timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("http.retry_max", constants.LowRetryMax)
	v.SetDefault("http.retry_wait_min", constants.DefaultRetryWaitMin)
	v.SetDefault("http.retry_wait_max", constants.DefaultRetryWaitMax)
	v.SetDefault("http.user_agent", constants.DefaultUserAgent)
	v.SetDefault("http.debug", false)
	v.SetDefault("sources_file", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.bucket", "")
	v.SetDefault("circuit_breaker.threshold", constants.CircuitBreakerThreshold)
	v.SetDefault("circuit_breaker.timeout", constants.CircuitBreakerTimeout)
	v.SetDefault("circuit_breaker.success_threshold", constants.CircuitBreakerSuccessThreshold)
}

// Load reads the configuration file and decodes it.
func (l *Loader) Load() (*Config, error) {
	err := l.viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, constants.ErrNoConfigFileSelected
		}

		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	l.logger.Debug("Using config file", map[string]interface{}{
		"file": l.viper.ConfigFileUsed(),
	})

	return l.Decode()
}

// Decode decodes the settings viper currently holds.
func (l *Loader) Decode() (*Config, error) {
	var cfg Config

	err := l.viper.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the file the last Load read.
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

// Watch calls onChange with every valid revision of the file. Invalid
// revisions are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) {
	l.viper.OnConfigChange(func(event fsnotify.Event) {
		cfg, err := l.Decode()
		if err != nil {
			l.logger.Error("Config reload failed", map[string]interface{}{
				"file":  event.Name,
				"error": err.Error(),
			})

			return
		}

		l.logger.Info("Config reloaded", map[string]interface{}{
			"file": event.Name,
			"op":   event.Op.String(),
		})

		onChange(cfg)
	})

	l.viper.WatchConfig()
}
