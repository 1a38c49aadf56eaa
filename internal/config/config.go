package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the configuration settings for the application.
type Config struct {
	Env        string           `mapstructure:"env"`                                           // Env is the current environment: local, development, production.
	HTTP       HTTPConfig       `mapstructure:"http"`                                          // HTTP is the API server.
	Monitoring HTTPConfig       `mapstructure:"monitoring"`                                    // Monitoring serves /healthz and /metrics.
	Storage    string           `mapstructure:"storage"    validate:"oneof=postgres memory"`   // Storage selects the task store.
	SeedFile   string           `mapstructure:"seed_file"`                                     // SeedFile is a YAML catalog loaded into the memory store.
	Database   PostgresConfig   `mapstructure:"postgres"`                                      // Database holds the postgres database configuration
	Telegram   TelegramConfig   `mapstructure:"telegram"`                                      // Telegram configures notification delivery.
	Schedule   ScheduleConfig   `mapstructure:"schedule"`                                      // Schedule configures the facility window resolver.
	Projection ProjectionConfig `mapstructure:"projection"`                                    // Projection limits projection requests.
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`                                     // Reconcile configures the batch passes.
	Events     EventsConfig     `mapstructure:"events"`                                        // Events configures the notification bus.
}

// HTTPConfig is a listening port.
type HTTPConfig struct {
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`     // Host is the database server address.
	Port     string `mapstructure:"port"`     // Port is the database server port.
	User     string `mapstructure:"user"`     // User is the database user.
	Password string `mapstructure:"password"` // Password is the database user's password.
	Name     string `mapstructure:"db_name"`  // Name is the name of the database.
	SSLMode  string `mapstructure:"sslmode"`  // SSLMode is passed to the server as sslmode.

	MaxConns        int32         `mapstructure:"max_conns"         validate:"gte=0"`
	MinConns        int32         `mapstructure:"min_conns"         validate:"gte=0"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// TelegramConfig configures the notifier bot.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Token    string        `mapstructure:"token"    validate:"required_if=Enabled true"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Language string        `mapstructure:"language"`
}

type ScheduleConfig struct {
	DefaultTimezone     string `mapstructure:"default_timezone"      validate:"required"`
	RequireWorkingHours bool   `mapstructure:"require_working_hours"`
}

type ProjectionConfig struct {
	MaxDays int `mapstructure:"max_days" validate:"min=1,max=366"`
}

type ReconcileConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	GracePeriod         time.Duration `mapstructure:"grace_period"          validate:"min=0"`
	RetentionDays       int           `mapstructure:"retention_days"        validate:"min=1"`
	VirtualLookbackDays int           `mapstructure:"virtual_lookback_days" validate:"min=0,max=31"`
	OverdueCron         string        `mapstructure:"overdue_cron"`
	RetentionCron       string        `mapstructure:"retention_cron"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

type EventsConfig struct {
	Buffer int `mapstructure:"buffer" validate:"min=1"`
}


// MustLoad loads the configuration from the YAML file at CONFIG_PATH, overlaid by
// CUSTODIAN_* environment variables. It panics on any error.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		panic("config path is empty")
	}

	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		panic("config error: " + err.Error())
	}

	return cfg
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CUSTODIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Storage == StoragePostgres && (cfg.Database.Host == "" || cfg.Database.Name == "") {
		return nil, errors.New("invalid config: postgres storage needs postgres.host and postgres.db_name")
	}
	if _, err := time.LoadLocation(cfg.Schedule.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid config: schedule.default_timezone: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	const (
		defHTTPPort        = 8080
		defMonitoringPort  = 9090
		defPollerTimeout   = 10 * time.Second
		defMaxDays         = 62
		defGracePeriod     = time.Hour
		defRetentionDays   = 90
		defReconcileTimeout = 10 * time.Minute
		defEventsBuffer    = 256
	)

	v.SetDefault("env", "production")
	v.SetDefault("http.port", defHTTPPort)
	v.SetDefault("monitoring.port", defMonitoringPort)
	v.SetDefault("storage", StoragePostgres)
	v.SetDefault("seed_file", "")

	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db_name", "")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 3)
	v.SetDefault("postgres.max_conn_idle_time", 30*time.Second)
	v.SetDefault("postgres.connect_timeout", 5*time.Second)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.timeout", defPollerTimeout)
	v.SetDefault("telegram.language", "ru")

	v.SetDefault("schedule.default_timezone", "UTC")
	v.SetDefault("schedule.require_working_hours", false)

	v.SetDefault("projection.max_days", defMaxDays)

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.grace_period", defGracePeriod)
	v.SetDefault("reconcile.retention_days", defRetentionDays)
	v.SetDefault("reconcile.virtual_lookback_days", 1)
	v.SetDefault("reconcile.overdue_cron", "15 0 * * *")
	v.SetDefault("reconcile.retention_cron", "30 3 * * 0")
	v.SetDefault("reconcile.timeout", defReconcileTimeout)

	v.SetDefault("events.buffer", defEventsBuffer)
}
