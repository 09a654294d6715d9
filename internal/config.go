package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	MOC     MOCConfig         `yaml:"moc"`
	Watcher WatcherConfig     `yaml:"watcher"`
	Journal JournalConfig     `yaml:"journal"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Watcher.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	LogFile  string     `yaml:"log_file"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the optional status API configuration.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the watched notes directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate checks that the vault path is set and is an existing directory.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required.Error("a vault path is required"), validation.By(isDir)),
	)
}

func isDir(value interface{}) error {
	p, _ := value.(string)
	if p == "" {
		return nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return errors.New("vault path does not exist")
	}
	if !info.IsDir() {
		return errors.New("vault path is not a directory")
	}
	return nil
}

// MOCConfig controls index-note classification.
type MOCConfig struct {
	// Strict disables the loose "contains MOC anywhere" rule.
	Strict bool `yaml:"strict"`
}

// WatcherConfig tunes the filesystem watcher.
type WatcherConfig struct {
	RenameWindow time.Duration `yaml:"rename_window"`
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RenameWindow, validation.Min(time.Duration(0)), validation.Max(10*time.Second)),
	)
}

// JournalConfig holds the optional SQLite activity journal.
// An empty path disables the journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether the journal should be opened.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds authentication configuration for the status API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
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
		Watcher: WatcherConfig{
			RenameWindow: 250 * time.Millisecond,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
