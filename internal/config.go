package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Repository RepositoryConfig  `yaml:"repository"`
	Ledger     LedgerConfig      `yaml:"ledger"`
	Retention  RetentionConfig   `yaml:"retention"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Repository.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	return c.Retention.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration for serve mode.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RepositoryConfig holds the three tier directories of the deal store.
type RepositoryConfig struct {
	Current  string `yaml:"current"`
	Previous string `yaml:"previous"`
	Archive  string `yaml:"archive"`
}

// Validate validates the repository configuration.
func (c *RepositoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Current, validation.Required),
		validation.Field(&c.Previous, validation.Required),
		validation.Field(&c.Archive, validation.Required),
	)
}

// LedgerConfig holds the master workbook path and its companion artifacts.
type LedgerConfig struct {
	Path         string `yaml:"path"`
	BackupDir    string `yaml:"backup_dir"`
	CacheDir     string `yaml:"cache_dir"`
	HeaderSource string `yaml:"header_source"`
	Report       string `yaml:"report"`
	RunLog       string `yaml:"run_log"`
	Lock         string `yaml:"lock"`
}

// Validate validates the ledger configuration.
func (c *LedgerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.BackupDir, validation.Required),
		validation.Field(&c.CacheDir, validation.Required),
		validation.Field(&c.HeaderSource, validation.Required),
		validation.Field(&c.Report, validation.Required),
		validation.Field(&c.RunLog, validation.Required),
		validation.Field(&c.Lock, validation.Required),
	)
}

// RetentionConfig controls how many versions survive per deal base.
//
// Keep is the number of highest versions left in the Current tier during
// reconciliation; Retain is the number of highest versions whose rows stay
// in the ledger's record tables.
type RetentionConfig struct {
	Keep   int `yaml:"keep"`
	Retain int `yaml:"retain"`
}

// Validate validates the retention configuration.
func (c *RetentionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Keep, validation.Required, validation.Min(1)),
		validation.Field(&c.Retain, validation.Required, validation.Min(1)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Repository: RepositoryConfig{
			Current:  "./deals/Current Deals",
			Previous: "./deals/Previous Deals",
			Archive:  "./deals/Archive",
		},
		Ledger: LedgerConfig{
			Path:         "./deals/Master_Deals.xlsx",
			BackupDir:    "./deals/backups",
			CacheDir:     "./deals/.cache",
			HeaderSource: "./deals/header_source.txt",
			Report:       "./deals/dashboard.txt",
			RunLog:       "./deals/runs.db",
			Lock:         "./deals/.sync.lock",
		},
		Retention: RetentionConfig{
			Keep:   1,
			Retain: 2,
		},
	}
}
