package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Storage Storage
	Backup  struct {
		// Schedule is an optional cron spec for periodic snapshots.
		// Empty disables the scheduler.
		Schedule string
		// RestartDelay is how long the restart scheduler waits after a
		// runtime restore before re-spawning the process.
		RestartDelay time.Duration `validate:"min=0"`
	}
}

// Storage describes where the database lives. Root overrides exist so tests
// and restricted environments can substitute candidate directories without
// rewriting process environment variables.
type Storage struct {
	AppName      string `validate:"required"`
	DatabaseFile string `validate:"required"`
	Roots        RootOverrides
}

// RootOverrides optionally replaces the platform-derived candidate roots used
// by the directory resolver. Empty fields fall back to platform conventions.
type RootOverrides struct {
	PrimaryData   string
	SecondaryData string
	Documents     string
	Temp          string
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", "127.0.0.1:34115")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/storeguard.log")
	c.Storage.AppName = getenv("APP_NAME", "com.itehadironstore.management")
	c.Storage.DatabaseFile = getenv("DB_FILE", "store.db")
	c.Storage.Roots.PrimaryData = os.Getenv("PRIMARY_DATA_DIR")
	c.Storage.Roots.SecondaryData = os.Getenv("SECONDARY_DATA_DIR")
	c.Storage.Roots.Documents = os.Getenv("DOCUMENTS_DIR")
	c.Storage.Roots.Temp = os.Getenv("TEMP_DIR")
	c.Backup.Schedule = os.Getenv("BACKUP_SCHEDULE")

	delay, err := time.ParseDuration(getenv("RESTART_DELAY", "2s"))
	if err != nil {
		return Config{}, err
	}
	c.Backup.RestartDelay = delay

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
