package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerAddr    = ":8080"
	defaultBaseURL       = "https://ld-oauth-framework.vercel.app"
	defaultLocalhostPort = "3000"

	defaultAuthorizeURL      = "https://app.launchdarkly.com/trust/oauth/authorize"
	defaultTokenURL          = "https://app.launchdarkly.com/trust/oauth/token"
	defaultCallerIdentityURL = "https://app.launchdarkly.com/api/v2/caller-identity"
	defaultAPIBaseURL        = "https://app.launchdarkly.com/api/v2"
	defaultScope             = "reader"
)

type Config struct {
	Relay    RelayConfig    `yaml:"relay" json:"relay"`
	Provider ProviderConfig `yaml:"provider" json:"provider"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// RelayConfig controls how callbacks are received and forwarded.
// LaunchDarkly does not accept localhost redirect URIs, so BaseURL
// must be the deployed public URL of this service.
type RelayConfig struct {
	BaseURL              string `yaml:"baseURL" json:"baseURL" env:"FRAMEWORK_URL"`
	DefaultLocalhostPort string `yaml:"defaultLocalhostPort" json:"defaultLocalhostPort" env:"LOCALHOST_PORT"`
	TunnelURL            string `yaml:"tunnelURL" json:"tunnelURL" env:"TUNNEL_URL"`
}

// ProviderConfig holds the LaunchDarkly endpoints. The defaults point
// at production LaunchDarkly; tests override them with local servers.
type ProviderConfig struct {
	AuthorizeURL      string `yaml:"authorizeURL" json:"authorizeURL"`
	TokenURL          string `yaml:"tokenURL" json:"tokenURL"`
	CallerIdentityURL string `yaml:"callerIdentityURL" json:"callerIdentityURL"`
	APIBaseURL        string `yaml:"apiBaseURL" json:"apiBaseURL"`
	Scope             string `yaml:"scope" json:"scope"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`
	CORS bool   `yaml:"cors" json:"cors"`
}

// Load reads the optional YAML config file pointed at by
// LD_OAUTH_RELAY_CONFIG, applies environment overrides, and validates.
func Load() (*Config, error) {
	var cfg Config
	if fileName := os.Getenv("LD_OAUTH_RELAY_CONFIG"); fileName != "" {
		f, err := os.Open(fileName)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	if err := cfg.ValidateAndInitialize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ValidateAndInitialize() error {
	// Apply defaults.
	if c.Relay.BaseURL == "" {
		c.Relay.BaseURL = defaultBaseURL
	}
	if c.Relay.DefaultLocalhostPort == "" {
		c.Relay.DefaultLocalhostPort = defaultLocalhostPort
	}
	if c.Provider.AuthorizeURL == "" {
		c.Provider.AuthorizeURL = defaultAuthorizeURL
	}
	if c.Provider.TokenURL == "" {
		c.Provider.TokenURL = defaultTokenURL
	}
	if c.Provider.CallerIdentityURL == "" {
		c.Provider.CallerIdentityURL = defaultCallerIdentityURL
	}
	if c.Provider.APIBaseURL == "" {
		c.Provider.APIBaseURL = defaultAPIBaseURL
	}
	if c.Provider.Scope == "" {
		c.Provider.Scope = defaultScope
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}

	// Validate.
	if _, err := strconv.Atoi(c.Relay.DefaultLocalhostPort); err != nil {
		return fmt.Errorf("relay.defaultLocalhostPort must be numeric: %q", c.Relay.DefaultLocalhostPort)
	}

	return nil
}
