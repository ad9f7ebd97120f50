package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Toss     TossConfig     `mapstructure:"toss"`
	Order    OrderConfig    `mapstructure:"order"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// SecurityPolicy controls webhook signature verification behavior.
// It is an explicit configuration value, never derived from the deployment
// environment inside the verification code.
type SecurityPolicy string

const (
	// PolicyStrict rejects webhooks when no shared secret is configured.
	PolicyStrict SecurityPolicy = "strict"
	// PolicyPermissive accepts unsigned webhooks with a loud warning.
	// Intended for local development only.
	PolicyPermissive SecurityPolicy = "permissive"
)

// TossConfig holds payment provider configuration.
type TossConfig struct {
	BaseURL        string         `mapstructure:"base_url"`
	SecretKey      string         `mapstructure:"secret_key"`
	WebhookSecret  string         `mapstructure:"webhook_secret"`
	SecurityPolicy SecurityPolicy `mapstructure:"security_policy"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
}

// OrderConfig holds order business rules.
type OrderConfig struct {
	FeeRate      float64       `mapstructure:"fee_rate"`
	CancelWindow time.Duration `mapstructure:"cancel_window"`
}

// Load reads configuration from config.yaml and WORKMOA_* environment
// variables. Environment variables take precedence over the file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/workmoa")

	v.SetEnvPrefix("WORKMOA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env + defaults must be enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "workmoa")
	v.SetDefault("database.database", "workmoa")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.password", "")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("toss.base_url", "https://api.tosspayments.com")
	// Empty defaults register the keys so AutomaticEnv can fill them.
	v.SetDefault("toss.secret_key", "")
	v.SetDefault("toss.webhook_secret", "")
	v.SetDefault("toss.security_policy", string(PolicyStrict))
	v.SetDefault("toss.request_timeout", 10*time.Second)

	v.SetDefault("order.fee_rate", 0.10)
	v.SetDefault("order.cancel_window", 7*24*time.Hour)
}

func (c *Config) validate() error {
	switch c.Toss.SecurityPolicy {
	case PolicyStrict, PolicyPermissive:
	default:
		return fmt.Errorf("invalid toss.security_policy %q", c.Toss.SecurityPolicy)
	}
	if c.Toss.SecurityPolicy == PolicyStrict && c.Toss.WebhookSecret == "" {
		return fmt.Errorf("toss.webhook_secret is required under the strict security policy")
	}
	if c.Order.FeeRate < 0 || c.Order.FeeRate >= 1 {
		return fmt.Errorf("order.fee_rate must be in [0, 1)")
	}
	if c.Order.CancelWindow <= 0 {
		return fmt.Errorf("order.cancel_window must be positive")
	}
	return nil
}
