package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all infrastructure configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Source   SourceConfig   `mapstructure:"source"`
	Log      LogConfig      `mapstructure:"log"`

	// SettingsFile is the JSON document with the pricing rules.
	SettingsFile string `mapstructure:"settings_file" validate:"required"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Host string `mapstructure:"host"`
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	Name     string `mapstructure:"name" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
}

// DSN is the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host" validate:"required"`
	Port          int    `mapstructure:"port" validate:"min=1,max=65535"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database" validate:"min=0"`
	ConsumerGroup string `mapstructure:"consumer_group" validate:"required"`
	MinIdleTime   int    `mapstructure:"min_idle_time" validate:"min=1"`
	// ExportMaxLen caps the export part stream. Zero leaves it untrimmed.
	ExportMaxLen int64 `mapstructure:"export_max_len" validate:"min=0"`
}

// WorkerConfig sizes the chunk pipeline
type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers" validate:"min=1"`
	ChunkSize  int `mapstructure:"chunk_size" validate:"min=1"`
}

// SourceConfig configures where row exports are fetched from
type SourceConfig struct {
	BaseURL              string `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout              int    `mapstructure:"timeout" validate:"min=1"`
	MaxRetries           int    `mapstructure:"max_retries" validate:"min=0"`
	MaxRequestsPerSecond int    `mapstructure:"max_requests_per_second" validate:"min=1"`
}

// LogConfig controls the logrus setup
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format     string `mapstructure:"format" validate:"oneof=text json"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size" validate:"min=1"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"min=0"`
	Compress   bool   `mapstructure:"compress"`

	// ExportDir receives one debug log per export run. Empty disables them.
	ExportDir string `mapstructure:"export_dir"`
}

// Load loads configuration from a YAML file with environment variable and
// command line overrides. A missing file leaves the defaults in place.
func Load(args []string) (*Config, error) {
	v := viper.New()

	flags := pflag.NewFlagSet("repricer", pflag.ContinueOnError)
	configFile := flags.String("config", "config.yaml", "path to the YAML config file")
	flags.String("settings", "settings.json", "path to the pricing settings file")
	flags.Int("workers", 4, "number of chunk workers")
	flags.Int("port", 8080, "HTTP port")
	flags.String("log-level", "info", "log level")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("error parsing flags: %w", err)
	}

	setDefaults(v)

	for key, flag := range map[string]string{
		"settings_file":      "settings",
		"worker.max_workers": "workers",
		"server.port":        "port",
		"log.level":          "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	v.SetConfigFile(*configFile)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("repricer")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Warnf("⚠️ Config file %s not found, using defaults", *configFile)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "repricer")
	v.SetDefault("database.user", "repricer_user")
	v.SetDefault("database.password", "repricer_pass")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "repricer_consumer")
	v.SetDefault("redis.min_idle_time", 120)
	v.SetDefault("redis.export_max_len", 1000)

	v.SetDefault("worker.max_workers", 4)
	v.SetDefault("worker.chunk_size", 500)

	v.SetDefault("source.base_url", "")
	v.SetDefault("source.timeout", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.max_requests_per_second", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.export_dir", "logs")

	v.SetDefault("settings_file", "settings.json")
}
