// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// BookingConfig seeds the booking policy before the first settings load.
// The runtime values live in the settings table and are refreshed through
// the policy provider.
type BookingConfig struct {
	HorizonDays             int64 `yaml:"horizon_days"`
	CancellationWindowHours int64 `yaml:"cancellation_window_hours"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`

	Booking BookingConfig `yaml:"booking"`

	Features struct {
		EnableScheduler bool `yaml:"enable_scheduler"`
		EnableDebug     bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// Read and parse YAML config
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Load sensitive values from environment
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")

	cfg.applyDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "belay"
	cfg.App.Environment = "development"
	cfg.App.Port = 8080
	cfg.Database.Driver = "sqlite"
	cfg.Database.Filename = "data/belay.db"
	cfg.Features.EnableScheduler = true
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Booking.HorizonDays == 0 {
		c.Booking.HorizonDays = 14
	}
	if c.Booking.CancellationWindowHours == 0 {
		c.Booking.CancellationWindowHours = 24
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Booking.HorizonDays < 0 {
		return fmt.Errorf("booking horizon days must not be negative")
	}
	if c.Booking.CancellationWindowHours < 0 {
		return fmt.Errorf("cancellation window hours must not be negative")
	}

	return nil
}
