package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/wstore/internal/maintenance"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app" toml:"app"`
	Storage     StorageConfig     `yaml:"storage" toml:"storage"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Journal     JournalConfig     `yaml:"journal" toml:"journal"`
	Watcher     WatcherConfig     `yaml:"watcher" toml:"watcher"`
	Maintenance MaintenanceConfig `yaml:"maintenance" toml:"maintenance"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if c.Journal.Enabled && isWithin(c.Storage.Path, c.Journal.Path) {
		return errors.New("journal: path must be outside storage.path")
	}
	if err := c.Watcher.Validate(); err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if c.Watcher.Enabled && !c.Journal.Enabled {
		return errors.New("watcher: requires journal.enabled")
	}
	if err := c.Maintenance.Validate(); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP      HTTPConfig `yaml:"http" toml:"http"`
	AdminHTTP HTTPConfig `yaml:"admin_http" toml:"admin_http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(&c.HTTP,
		validation.Field(&c.HTTP.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := validation.ValidateStruct(&c.AdminHTTP,
		validation.Field(&c.AdminHTTP.Port, validation.Min(0), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("admin_http: %w", err)
	}
	if c.AdminHTTP.Enabled() && c.AdminHTTP.Address() == c.HTTP.Address() {
		return errors.New("admin_http: must listen on a different address than http")
	}
	return nil
}

// HTTPConfig holds HTTP listener configuration.
type HTTPConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Enabled reports whether a listener is configured. Port 0 disables it.
func (c *HTTPConfig) Enabled() bool {
	return c.Port != 0
}

// StorageConfig describes the storage root and request limits.
type StorageConfig struct {
	Path            string `yaml:"path" toml:"path"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxConcurrentIO int    `yaml:"max_concurrent_io" toml:"max_concurrent_io"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MaxBodyBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.MaxConcurrentIO, validation.Required, validation.Min(1)),
	)
}

// AuthConfig holds the single shared credential gating writes.
//
// PasswordHash, when set, is a bcrypt hash and takes precedence over Password.
type AuthConfig struct {
	Realm        string `yaml:"realm" toml:"realm"`
	Username     string `yaml:"username" toml:"username"`
	Password     string `yaml:"password" toml:"password"`
	PasswordHash string `yaml:"password_hash" toml:"password_hash"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.When(c.PasswordHash == "",
			validation.Required.Error("password or password_hash is required"))),
		validation.Field(&c.PasswordHash, validation.By(func(any) error {
			if c.PasswordHash == "" {
				return nil
			}
			if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
				return errors.New("must be a bcrypt hash")
			}
			return nil
		})),
	)
}

// JournalConfig enables the SQLite change journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Validate validates the journal configuration.
func (c *JournalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// WatcherConfig enables journaling of edits made directly on disk.
type WatcherConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Debounce string `yaml:"debounce" toml:"debounce"`
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.By(durationRule)),
	)
}

// DebounceDuration returns the parsed debounce, or 0 when unset.
func (c *WatcherConfig) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Debounce)
	return d
}

// MaintenanceConfig schedules the temp-file sweeper. An empty schedule disables it.
type MaintenanceConfig struct {
	SweepSchedule string `yaml:"sweep_schedule" toml:"sweep_schedule"`
	TempMaxAge    string `yaml:"temp_max_age" toml:"temp_max_age"`
}

// Validate validates the maintenance configuration.
func (c *MaintenanceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SweepSchedule, validation.By(func(any) error {
			if c.SweepSchedule == "" {
				return nil
			}
			return maintenance.ValidateSchedule(c.SweepSchedule)
		})),
		validation.Field(&c.TempMaxAge, validation.By(durationRule)),
	)
}

// TempMaxAgeDuration returns the parsed max age, or 0 when unset.
func (c *MaintenanceConfig) TempMaxAgeDuration() time.Duration {
	d, _ := time.ParseDuration(c.TempMaxAge)
	return d
}

// isWithin reports whether p is dir or lies below it, comparing absolute paths.
func isWithin(dir, p string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absP, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absP)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func durationRule(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return fmt.Errorf("duration %q must not be negative", s)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
// The credential has no default and must be configured.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 4500,
			},
		},
		Storage: StorageConfig{
			Path:            "./storage",
			MaxBodyBytes:    50 << 20,
			MaxConcurrentIO: 64,
		},
		Auth: AuthConfig{
			Realm: "wstore",
		},
		Journal: JournalConfig{
			Path: "./wstore.db",
		},
		Watcher: WatcherConfig{
			Debounce: "200ms",
		},
		Maintenance: MaintenanceConfig{
			SweepSchedule: "@hourly",
			TempMaxAge:    "1h",
		},
	}
}
