package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. BANK_DB_URL.
const Prefix = "BANK"

type DB struct {
	Driver string `envconfig:"DRIVER" default:"sqlite"`
	Url    string `envconfig:"URL" default:"bank.db"`
}

type Mongo struct {
	URI      string `envconfig:"URI"`
	Database string `envconfig:"DATABASE" default:"ledger"`
}

type RabbitMQ struct {
	URI   string `envconfig:"URI"`
	Queue string `envconfig:"QUEUE" default:"ledger_entries"`
}

type Accounts struct {
	MaxNumberAttempts int `envconfig:"MAX_NUMBER_ATTEMPTS" default:"100"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"text"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[bank]"`
}

type App struct {
	Env      string    `envconfig:"ENV" default:"development"`
	DB       *DB       `envconfig:"DB"`
	Mongo    *Mongo    `envconfig:"MONGO"`
	RabbitMQ *RabbitMQ `envconfig:"RABBITMQ"`
	Accounts *Accounts `envconfig:"ACCOUNTS"`
	Log      *Log      `envconfig:"LOG"`
}

// Load reads the first env file found among envFilePaths (or .env when none
// are given) and then fills App from the environment. Variables already set in
// the environment win over the file.
func Load(envFilePaths ...string) (*App, error) {
	logger := slog.Default()

	if len(envFilePaths) == 0 {
		envFilePaths = []string{".env"}
	}
	for _, path := range envFilePaths {
		if _, err := os.Stat(path); err != nil {
			logger.Debug("Environment file not found", "path", path)
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Warn("Failed to load environment file", "path", path, "error", err)
			continue
		}
		logger.Debug("Loaded environment file", "path", path)
		break
	}

	return loadFromEnv()
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	slog.Default().Debug("App config loaded",
		"env", cfg.Env,
		"db_driver", cfg.DB.Driver,
		"db", maskValue(cfg.DB.Url),
		"mongo", maskValue(cfg.Mongo.URI),
		"rabbitmq", maskValue(cfg.RabbitMQ.URI),
		"max_number_attempts", cfg.Accounts.MaxNumberAttempts,
	)
	return &cfg, nil
}

func (c *App) validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported %s_DB_DRIVER %q", Prefix, c.DB.Driver)
	}
	if c.Accounts.MaxNumberAttempts <= 0 {
		return fmt.Errorf("%s_ACCOUNTS_MAX_NUMBER_ATTEMPTS must be positive, got %d", Prefix, c.Accounts.MaxNumberAttempts)
	}
	return nil
}

func maskValue(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
