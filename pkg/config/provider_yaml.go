package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chrissnell/vantaged/internal/log"
)

// Defaults applied before validation.
const (
	DefaultReadingsInterval = 15 * time.Second
	DefaultArchiveDelay     = 20 * time.Second
	DefaultClockSync        = "03:05"
	DefaultBackupAt         = "02:30"
	DefaultDatafeedListen   = ":11011"
	DefaultRESTListen       = ":8080"
	DefaultHealthListen     = ":50051"
	DefaultValkeyPrefix     = "vantaged"
	DefaultValkeyTTL        = 10 * time.Minute
	DefaultKafkaTimeout     = 10 * time.Second
	envPrefix               = "VANTAGED_"
)

var validate = validator.New()

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	getenv   func(string) string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
		getenv:   os.Getenv,
	}
}

// LoadConfig reads the file, applies VANTAGED_* environment overrides and
// defaults, and validates the result. A .env file in the working directory
// is loaded into the environment first.
func (y *YAMLProvider) LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	raw, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", y.filename, err)
	}
	return y.parse(raw)
}

func (y *YAMLProvider) parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	cfg.Station.AlignStart = true
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", y.filename, err)
	}

	if err := y.applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", y.filename, err)
	}
	return cfg, nil
}

// applyEnv lets the environment override endpoints and secrets.
func (y *YAMLProvider) applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := y.getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}

	str("STATION_DEVICE", &cfg.Station.Medium.Device)
	str("STATION_ADDRESS", &cfg.Station.Medium.Address)
	str("ARCHIVE_DIR", &cfg.Archive.Dir)
	str("ARCHIVE_DATABASE", &cfg.Archive.Database)
	str("HILOW_DATABASE", &cfg.Archive.HiLowDatabase)
	str("TIMESCALEDB_CONNECTION_STRING", &cfg.Storage.TimescaleDB.ConnectionString)
	str("KAFKA_TOPIC", &cfg.Storage.Kafka.Topic)
	str("VALKEY_ADDRESS", &cfg.Storage.Valkey.Address)
	str("VALKEY_USERNAME", &cfg.Storage.Valkey.Username)
	str("VALKEY_PASSWORD", &cfg.Storage.Valkey.Password)
	str("BACKUP_ENDPOINT", &cfg.Backup.Endpoint)
	str("BACKUP_ACCESS_KEY", &cfg.Backup.AccessKey)
	str("BACKUP_SECRET_KEY", &cfg.Backup.SecretKey)
	str("BACKUP_BUCKET", &cfg.Backup.Bucket)

	if v := y.getenv(envPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Storage.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := y.getenv(envPrefix + "READINGS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sREADINGS_INTERVAL: %w", envPrefix, err)
		}
		cfg.Schedule.ReadingsInterval = d
	}
	if v := y.getenv(envPrefix + "DEBUG"); v != "" {
		cfg.Log.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Schedule.ReadingsInterval == 0 {
		cfg.Schedule.ReadingsInterval = DefaultReadingsInterval
	}
	if cfg.Schedule.ArchiveDelay == 0 {
		cfg.Schedule.ArchiveDelay = DefaultArchiveDelay
	}
	if cfg.Schedule.ClockSync == "" {
		cfg.Schedule.ClockSync = DefaultClockSync
	}
	if cfg.Backup.At == "" {
		cfg.Backup.At = DefaultBackupAt
	}
	if cfg.Datafeed.Listen == "" {
		cfg.Datafeed.Listen = DefaultDatafeedListen
	}
	if cfg.REST.Listen == "" {
		cfg.REST.Listen = DefaultRESTListen
	}
	if cfg.Health.Listen == "" {
		cfg.Health.Listen = DefaultHealthListen
	}
	if cfg.Storage.Valkey.Prefix == "" {
		cfg.Storage.Valkey.Prefix = DefaultValkeyPrefix
	}
	if cfg.Storage.Valkey.TTL == 0 {
		cfg.Storage.Valkey.TTL = DefaultValkeyTTL
	}
	if cfg.Storage.Kafka.WriteTimeout == 0 {
		cfg.Storage.Kafka.WriteTimeout = DefaultKafkaTimeout
	}
	if cfg.Station.Medium.Type == "serial" && cfg.Station.Medium.Baud == 0 {
		cfg.Station.Medium.Baud = 19200
	}
}
