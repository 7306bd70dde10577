package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/go-homedir"

	"github.com/starford/tessera/internal/geometry"
	"github.com/starford/tessera/internal/workspace"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Auth     AuthConfig        `yaml:"auth"`
	Geometry GeometryConfig    `yaml:"geometry"`
	Tiles    TilesConfig       `yaml:"tiles"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	return c.Tiles.Validate()
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

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
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

// GeometryConfig selects where remembered tile geometry is kept.
//
// Driver "sqlite" stores rows in a database file at Path; "diskv" keeps one
// JSON file per tile under the directory Path. Timeout bounds every read and
// write against the store; zero disables the bound.
type GeometryConfig struct {
	Driver  string        `yaml:"driver"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the geometry store configuration.
func (c *GeometryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(geometry.DriverSQLite, geometry.DriverDiskv)),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// ResolvedPath returns Path with a leading ~ expanded to the home directory.
func (c *GeometryConfig) ResolvedPath() (string, error) {
	return homedir.Expand(c.Path)
}

// TilesConfig holds the layout parameters. This section is reloaded while
// the server runs.
type TilesConfig struct {
	Gap          float64       `yaml:"gap"`
	MinWidth     float64       `yaml:"min_width"`
	MinHeight    float64       `yaml:"min_height"`
	CanvasWidth  float64       `yaml:"canvas_width"`
	CanvasHeight float64       `yaml:"canvas_height"`
	SaveDebounce time.Duration `yaml:"save_debounce"`
}

// Validate validates the layout parameters.
func (c *TilesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Gap, validation.Min(0.0)),
		validation.Field(&c.MinWidth, validation.Required, validation.Min(1.0)),
		validation.Field(&c.MinHeight, validation.Required, validation.Min(1.0)),
		validation.Field(&c.CanvasWidth, validation.Required, validation.Min(1.0)),
		validation.Field(&c.CanvasHeight, validation.Required, validation.Min(1.0)),
		validation.Field(&c.SaveDebounce, validation.Min(time.Duration(0))),
	)
}

// Settings converts the section into workspace settings.
func (c *TilesConfig) Settings() workspace.Settings {
	return workspace.Settings{
		Gap:          c.Gap,
		MinWidth:     c.MinWidth,
		MinHeight:    c.MinHeight,
		CanvasWidth:  c.CanvasWidth,
		CanvasHeight: c.CanvasHeight,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	defaults := workspace.DefaultSettings()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Geometry: GeometryConfig{
			Driver:  geometry.DriverSQLite,
			Path:    "./tessera.db",
			Timeout: 2 * time.Second,
		},
		Tiles: TilesConfig{
			Gap:          defaults.Gap,
			MinWidth:     defaults.MinWidth,
			MinHeight:    defaults.MinHeight,
			CanvasWidth:  defaults.CanvasWidth,
			CanvasHeight: defaults.CanvasHeight,
		},
	}
}
