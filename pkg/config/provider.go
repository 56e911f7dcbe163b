// Package config loads the daemon configuration.
package config

import (
	"time"

	"github.com/chrissnell/vantaged/internal/weatherstations/davis"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	LoadConfig() (*Config, error)
}

// Config is the base configuration object
type Config struct {
	Station  davis.Config   `yaml:"station"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Backup   BackupConfig   `yaml:"backup,omitempty"`
	Datafeed DatafeedConfig `yaml:"datafeed,omitempty"`
	REST     RESTConfig     `yaml:"rest,omitempty"`
	Health   HealthConfig   `yaml:"health,omitempty"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// ArchiveConfig locates the local archive files and databases.
type ArchiveConfig struct {
	// Dir holds the <year>-<month>.wlk files.
	Dir string `yaml:"dir" validate:"required"`
	// Database is the long-term SQLite archive.
	Database string `yaml:"database" validate:"required"`
	// HiLowDatabase is the SQLite hi-low store.
	HiLowDatabase string `yaml:"hilowDatabase" validate:"required"`
	// TimeZone is the console's zone; empty selects the host's.
	TimeZone string `yaml:"timezone,omitempty"`
}

// Location resolves TimeZone.
func (a ArchiveConfig) Location() (*time.Location, error) {
	if a.TimeZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(a.TimeZone)
}

// ScheduleConfig sets how often the station is polled.
type ScheduleConfig struct {
	ReadingsInterval time.Duration `yaml:"readingsInterval" validate:"min=2s"`
	// ArchiveDelay is how long after each archive boundary the download
	// starts, giving the console time to write its record.
	ArchiveDelay time.Duration `yaml:"archiveDelay"`
	// ClockSync is the local HH:MM the console clock is set daily.
	ClockSync string `yaml:"clockSync" validate:"omitempty,datetime=15:04"`
}

// StorageConfig holds the configuration for various storage backends.
// More than one storage backend can be used simultaneously
type StorageConfig struct {
	TimescaleDB TimescaleDBConfig `yaml:"timescaledb,omitempty"`
	Kafka       KafkaConfig       `yaml:"kafka,omitempty"`
	Valkey      ValkeyConfig      `yaml:"valkey,omitempty"`
}

// TimescaleDBConfig holds the connection string for TimescaleDB.
type TimescaleDBConfig struct {
	ConnectionString string `yaml:"connection-string,omitempty"`
}

// KafkaConfig publishes observations to a topic.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers,omitempty" validate:"omitempty,dive,hostname_port"`
	Topic        string        `yaml:"topic,omitempty" validate:"required_with=Brokers"`
	WriteTimeout time.Duration `yaml:"writeTimeout,omitempty"`
}

// ValkeyConfig caches the latest conditions.
type ValkeyConfig struct {
	Address  string        `yaml:"address,omitempty" validate:"omitempty,hostname_port"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// BackupConfig copies month files to S3-compatible storage every night.
type BackupConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"accessKey,omitempty" validate:"required_with=Endpoint"`
	SecretKey string `yaml:"secretKey,omitempty" validate:"required_with=Endpoint"`
	Bucket    string `yaml:"bucket,omitempty" validate:"required_with=Endpoint"`
	Region    string `yaml:"region,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	UseSSL    bool   `yaml:"useSSL,omitempty"`
	// At is the local HH:MM the backup runs.
	At string `yaml:"at,omitempty" validate:"omitempty,datetime=15:04"`
}

// DatafeedConfig serves live packets to TCP clients.
type DatafeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// RESTConfig configures the HTTP API.
type RESTConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// HealthConfig configures the gRPC health service.
type HealthConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// LogConfig configures logging. An empty File logs to stderr.
type LogConfig struct {
	Debug      bool   `yaml:"debug,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
}
