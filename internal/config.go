package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Registry modes.
const (
	RegistryModeDisabled = "disabled"
	RegistryModeStatic   = "static"
	RegistryModeGitHub   = "github"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Deck     DeckConfig        `yaml:"deck"`
	History  HistoryConfig     `yaml:"history"`
	Registry RegistryConfig    `yaml:"registry"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Deck.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// HTTPConfig holds HTTP server configuration.
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

// DeckConfig holds the deck roots a serve or watch process operates on.
//
// PreviousPath, when set, enables revision diffing against that snapshot;
// the version fields carry the declared MAJOR.MINOR of each snapshot.
type DeckConfig struct {
	Path            string `yaml:"path"`
	PreviousPath    string `yaml:"previous_path"`
	PreviousVersion string `yaml:"previous_version"`
	Version         string `yaml:"version"`
	// DebounceMS batches filesystem events in watch mode.
	DebounceMS int `yaml:"debounce_ms"`
}

// Validate validates the deck configuration.
func (c *DeckConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.DebounceMS, validation.Min(0)),
	)
}

// Debounce returns the watch-mode debounce window.
func (c *DeckConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// HistoryConfig holds the SQLite run-history database configuration.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RegistryConfig controls the listing-registry check.
//
// Mode selects the topic provider:
//   - "disabled" (default): the check is skipped.
//   - "static": Topics lists the registered topics directly.
//   - "github": topics are fetched from the Owner/Repo repository.
type RegistryConfig struct {
	Mode    string   `yaml:"mode"`
	Topics  []string `yaml:"topics"`
	Owner   string   `yaml:"owner"`
	Repo    string   `yaml:"repo"`
	BaseURL string   `yaml:"base_url"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = RegistryModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required,
			validation.In(RegistryModeDisabled, RegistryModeStatic, RegistryModeGitHub)),
	); err != nil {
		return err
	}
	if c.Mode == RegistryModeGitHub && (c.Owner == "" || c.Repo == "") {
		return fmt.Errorf("registry: mode is %q but owner or repo is empty", RegistryModeGitHub)
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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
		Deck: DeckConfig{
			Path:       "./cards.deck",
			DebounceMS: 300,
		},
		History: HistoryConfig{
			Path: "./perthro.db",
		},
		Registry: RegistryConfig{
			Mode: RegistryModeDisabled,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
