// Package config handles loading and validation of onexport configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults. The client ID is a well-known public application that supports
// the device-code flow for personal Microsoft accounts; organizational
// accounts usually need their own Azure app registration and the "common"
// or "organizations" authority.
const (
	DefaultClientID  = "14d82eec-204b-4c2f-b7e8-296a70dab67e"
	DefaultAuthority = "https://login.microsoftonline.com/consumers"
	DefaultBaseURL   = "https://graph.microsoft.com/v1.0"
	DefaultExportDir = "OneNote_Export"

	DefaultPageSize        = 20
	DefaultListRetries     = 5
	DefaultDownloadRetries = 3
)

// DefaultScopes are the Graph permissions the exporter needs.
var DefaultScopes = []string{"Notes.Read", "Notes.Read.All", "User.Read"}

// AuthConfig configures the device-code sign-in.
type AuthConfig struct {
	ClientID  string   `yaml:"client_id"`
	Authority string   `yaml:"authority"`
	Scopes    []string `yaml:"scopes"`
}

// GraphConfig configures the Graph client.
type GraphConfig struct {
	BaseURL string `yaml:"base_url"`

	// PageSize is the $top value injected into paginated listings to bound
	// per-request cost.
	PageSize int `yaml:"page_size"`

	// ListRetries and DownloadRetries are per-URL retry budgets.
	ListRetries     int `yaml:"list_retries"`
	DownloadRetries int `yaml:"download_retries"`
}

// OutputConfig specifies where the export tree is written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Config is the top-level configuration structure. Every field has a
// working default, so running without a config file is fine.
type Config struct {
	Auth   AuthConfig   `yaml:"auth"`
	Graph  GraphConfig  `yaml:"graph"`
	Output OutputConfig `yaml:"output"`

	// AccessToken is loaded from the environment only. When set, the
	// device-code flow is skipped entirely.
	AccessToken string `yaml:"-"`
}

// Load reads configuration from an optional YAML file and the environment.
// A missing file is not an error; defaults apply. If a .env file exists in
// the current directory it is loaded first. ONENOTE_ACCESS_TOKEN supplies a
// pre-acquired bearer token.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Run on defaults.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.AccessToken = os.Getenv("ONENOTE_ACCESS_TOKEN")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Auth.ClientID == "" {
		c.Auth.ClientID = DefaultClientID
	}
	if c.Auth.Authority == "" {
		c.Auth.Authority = DefaultAuthority
	}
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.Graph.BaseURL == "" {
		c.Graph.BaseURL = DefaultBaseURL
	}
	if c.Graph.PageSize == 0 {
		c.Graph.PageSize = DefaultPageSize
	}
	if c.Graph.ListRetries == 0 {
		c.Graph.ListRetries = DefaultListRetries
	}
	if c.Graph.DownloadRetries == 0 {
		c.Graph.DownloadRetries = DefaultDownloadRetries
	}
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultExportDir
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.ClientID == "" {
		errs = append(errs, errors.New("auth.client_id is required"))
	}
	if _, err := url.ParseRequestURI(c.Auth.Authority); err != nil {
		errs = append(errs, fmt.Errorf("auth.authority is not a valid URL: %w", err))
	}
	if _, err := url.ParseRequestURI(c.Graph.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("graph.base_url is not a valid URL: %w", err))
	}
	if c.Graph.PageSize < 1 {
		errs = append(errs, errors.New("graph.page_size must be positive"))
	}
	if c.Graph.ListRetries < 1 {
		errs = append(errs, errors.New("graph.list_retries must be positive"))
	}
	if c.Graph.DownloadRetries < 1 {
		errs = append(errs, errors.New("graph.download_retries must be positive"))
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RemoteHost returns the host of the Graph endpoint. Written markdown is
// scanned for this substring to detect partially exported pages.
func (c *Config) RemoteHost() string {
	u, err := url.Parse(c.Graph.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}
