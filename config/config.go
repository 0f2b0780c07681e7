/*
Package config loads runtime configuration for the tariff engine.

Sources, in order of precedence:
 1. Environment variables (TARIFF_*)
 2. config.toml (searched in ./config and .)
 3. Built-in defaults

A .env file in the working directory is loaded first so local
development can override the environment without exporting variables.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServiceHost string
	ServicePort int

	// DatabasePath is the SQLite file. Use ":memory:" for ephemeral runs.
	DatabasePath string
	// BlobPath is the directory for the embedded document blob store.
	// Empty means documents are kept in memory only.
	BlobPath string

	// CompanyName appears on generated rate sheets.
	CompanyName string

	// ReminderInterval is how often the adjustment-due reminder checks
	// the calendar. Zero disables the reminder.
	ReminderInterval time.Duration

	ShutdownTimeout time.Duration
}

const (
	envServicePort  = "TARIFF_PORT"
	envDatabasePath = "TARIFF_DB_PATH"
	envBlobPath     = "TARIFF_BLOB_PATH"
	envCompanyName  = "TARIFF_COMPANY_NAME"
)

func defaults() *Config {
	return &Config{
		ServiceHost:      "0.0.0.0",
		ServicePort:      8080,
		DatabasePath:     "./data/tariffs.db",
		BlobPath:         "./data/blobs",
		CompanyName:      "Linehaul Logistics",
		ReminderInterval: time.Hour,
		ShutdownTimeout:  10 * time.Second,
	}
}

// New loads configuration. A missing config file is not an error; the
// defaults plus environment overrides apply.
func New() (*Config, error) {
	_ = godotenv.Load()

	configName := "config"
	if os.Getenv("CONFIG_NAME") != "" {
		configName = os.Getenv("CONFIG_NAME")
	}

	viper.SetConfigName(configName)
	viper.SetConfigType("toml")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")

	cfg := defaults()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv(envServicePort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s must be an int value: %w", envServicePort, err)
		}
		cfg.ServicePort = port
	}
	if v := os.Getenv(envDatabasePath); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv(envBlobPath); v != "" {
		cfg.BlobPath = v
	}
	if v := os.Getenv(envCompanyName); v != "" {
		cfg.CompanyName = v
	}

	return cfg, nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServiceHost, c.ServicePort)
}
