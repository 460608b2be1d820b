// Package settings loads the configuration of a charWS host application from a YAML file,
// CHARWS_ prefixed environment variables and command line flags.
//
// Keys are nested with dots in the file and flags, and with underscores in environment
// variables, e.g. client.call_timeout is read from CHARWS_CLIENT_CALL_TIMEOUT.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/arloliu/go-charws/client"
	"github.com/arloliu/go-charws/logger"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "CHARWS"

// Settings is the configuration of a host application.
type Settings struct {
	// URL is the WebSocket URL of the charWS server.
	URL     string           `mapstructure:"url"`
	Client  ClientSettings   `mapstructure:"client"`
	App     client.AppConfig `mapstructure:"app"`
	Log     LogSettings      `mapstructure:"log"`
	Metrics MetricsSettings  `mapstructure:"metrics"`
}

// ClientSettings mirrors the client.ConnOption values.
type ClientSettings struct {
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	ReadyPollInterval time.Duration `mapstructure:"ready_poll_interval"`
	KeepaliveUnit     time.Duration `mapstructure:"keepalive_unit"`
	AutoKeepalive     bool          `mapstructure:"auto_keepalive"`
	RetryCeiling      int           `mapstructure:"retry_ceiling"`
	AutoReconnect     bool          `mapstructure:"auto_reconnect"`
	ReconnectMinDelay time.Duration `mapstructure:"reconnect_min_delay"`
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay"`
	CloseTimeout      time.Duration `mapstructure:"close_timeout"`
}

// LogSettings configures the logger of the host application.
type LogSettings struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsSettings configures the prometheus endpoint.
type MetricsSettings struct {
	// Listen is the address of the prometheus endpoint, empty disables it.
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

var defaults = map[string]any{
	"url":                        "",
	"client.call_timeout":        30 * time.Second,
	"client.ready_poll_interval": time.Second,
	"client.keepalive_unit":      time.Second,
	"client.auto_keepalive":      true,
	"client.retry_ceiling":       10,
	"client.auto_reconnect":      false,
	"client.reconnect_min_delay": time.Second,
	"client.reconnect_max_delay": 30 * time.Second,
	"client.close_timeout":       3 * time.Second,
	"app.auth_required":          false,
	"app.run_config_auth":        false,
	"app.email":                  "",
	"app.password":               "",
	"app.app_agent":              "",
	"app.intents":                []string{},
	"log.level":                  "info",
	"log.add_source":             false,
	"metrics.listen":             "",
	"metrics.path":               "/metrics",
}

// Load reads the settings.
//
// If path is empty, config.yaml is searched in ".", "./config" and "/etc/charws", and a missing
// file is not an error. Flags of the given set override the file and the environment when they are
// changed, a flag named "log.level" sets the log.level key. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/charws")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Validate checks the values that are not validated by the client options.
func (s *Settings) Validate() error {
	if s.URL == "" {
		return errors.New("url is required")
	}

	if _, err := logger.ParseLevel(s.Log.Level); err != nil {
		return err
	}

	return nil
}

// LogLevel returns the configured log level.
func (s *Settings) LogLevel() logger.LogLevel {
	level, err := logger.ParseLevel(s.Log.Level)
	if err != nil {
		return logger.InfoLevel
	}

	return level
}

// ClientOptions returns the client options of the settings, with l as client logger.
func (s *Settings) ClientOptions(l logger.Logger) []client.ConnOption {
	c := s.Client
	opts := []client.ConnOption{
		client.WithCallTimeout(c.CallTimeout),
		client.WithReadyPollInterval(c.ReadyPollInterval),
		client.WithKeepaliveUnit(c.KeepaliveUnit),
		client.WithAutoKeepalive(c.AutoKeepalive),
		client.WithRetryCeiling(c.RetryCeiling),
		client.WithAutoReconnect(c.AutoReconnect),
		client.WithReconnectDelay(c.ReconnectMinDelay, c.ReconnectMaxDelay),
		client.WithCloseTimeout(c.CloseTimeout),
	}

	if l != nil {
		opts = append(opts, client.WithLogger(l))
	}

	return opts
}

// AppConfig returns the host application configuration.
func (s *Settings) AppConfig() client.AppConfig {
	app := s.App
	app.Intents = append([]string(nil), s.App.Intents...)

	return app
}
