package app

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	playground "github.com/go-playground/validator/v10"
	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/charlesng35/proctorrelay/pkg/validator"
)

// Config represents the runtime configuration for the relay service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel       string   `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	LogFormat      string   `mapstructure:"log_format" validate:"omitempty,oneof=json console"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(c.Host), c.Port)
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres postgresql mysql"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"min=0,max=65535"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures authentication settings. Tokens are issued by the account
// service; the relay only verifies them.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret" validate:"required"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl" validate:"min=0"`
}

// RealtimeConfig tunes relay sessions.
type RealtimeConfig struct {
	MailboxSize    int           `mapstructure:"mailbox_size" validate:"min=1,max=65536"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	PingInterval   time.Duration `mapstructure:"ping_interval" validate:"min=0"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout" validate:"min=0"`
	MaxMessageSize int64         `mapstructure:"max_message_size" validate:"min=0"`
}

// MonitoringConfig enables health checks, metrics and the stats reporter.
type MonitoringConfig struct {
	Prometheus    PrometheusConfig `mapstructure:"prometheus"`
	Health        HealthConfig     `mapstructure:"health_check"`
	StatsSchedule string           `mapstructure:"stats_schedule" validate:"omitempty,cron_schedule"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,startswith=/"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// legacyEnv maps keys onto the unprefixed variables older deployments export.
var legacyEnv = map[string]string{
	"auth.jwt.secret": "SECRET_KEY",
	"database.dsn":    "DATABASE_URL",
	"server.host":     "HOST_URL",
	"server.port":     "HOST_PORT",
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("PROCTORRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "PROCTORRELAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	config.normalise()
	return &config, nil
}

// Validate checks the loaded configuration before any component is started.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	if err := registerConfigRules(); err != nil {
		return fmt.Errorf("config: register rules: %w", err)
	}
	if err := validator.ValidateStruct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Realtime.PongTimeout > 0 && c.Realtime.PingInterval > 0 && c.Realtime.PongTimeout <= c.Realtime.PingInterval {
		return errors.New("config: realtime.pong_timeout must exceed realtime.ping_interval")
	}
	return nil
}

var (
	configRulesOnce sync.Once
	configRulesErr  error
)

// registerConfigRules installs the custom tags used by Config.
func registerConfigRules() error {
	configRulesOnce.Do(func() {
		configRulesErr = validator.RegisterValidation("cron_schedule", func(fl playground.FieldLevel) bool {
			_, err := cron.ParseStandard(fl.Field().String())
			return err == nil
		})
	})
	return configRulesErr
}

func (c *Config) normalise() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Server.LogLevel = strings.ToLower(strings.TrimSpace(c.Server.LogLevel))
	c.Server.LogFormat = strings.ToLower(strings.TrimSpace(c.Server.LogFormat))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Auth.JWT.Secret = strings.TrimSpace(c.Auth.JWT.Secret)

	origins := c.Server.AllowedOrigins[:0]
	for _, origin := range c.Server.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Server.AllowedOrigins = origins
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/proctorrelay.sqlite")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.access_token_ttl", "24h")

	v.SetDefault("realtime.mailbox_size", 64)
	v.SetDefault("realtime.write_timeout", "10s")
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("realtime.pong_timeout", "0s")
	v.SetDefault("realtime.max_message_size", 65536)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.stats_schedule", "@every 1m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
