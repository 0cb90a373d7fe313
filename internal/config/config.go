package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// AuthScheme selects how requests to the upstream API are authenticated.
type AuthScheme string

const (
	AuthBasic  AuthScheme = "basic"
	AuthBearer AuthScheme = "bearer"
)

// preEncodedBasicPrefix is the base64 of "aid"; Spruce access tokens that are
// already a complete Basic credential start with it, because the plain form
// always begins "aid_...". Such a key is used verbatim instead of re-encoded.
const preEncodedBasicPrefix = "YWlk"

// Config holds the configuration for the sync service.
// Environment variables are parsed from the SPRUCE_SYNC_ prefix.
type Config struct {
	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8090"`

	// Upstream Spruce API
	SpruceBaseURL     string `envconfig:"SPRUCE_BASE_URL" default:"https://api.sprucehealth.com/v1"`
	SpruceAccessID    string `envconfig:"SPRUCE_ACCESS_ID" default:""`
	SpruceAPIKey      string `envconfig:"SPRUCE_API_KEY" default:""`
	SpruceBearerToken string `envconfig:"SPRUCE_BEARER_TOKEN" default:""`

	// Derived once at startup; override only for testing.
	AuthScheme AuthScheme `envconfig:"AUTH_SCHEME" default:""`

	// Cache storage
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	// Sync tuning
	ConversationPageSize int           `envconfig:"CONVERSATION_PAGE_SIZE" default:"200"`
	ConversationPageCap  int           `envconfig:"CONVERSATION_PAGE_CAP" default:"100"`
	HistoryPageCap       int           `envconfig:"HISTORY_PAGE_CAP" default:"20"`
	UpdatePageSize       int           `envconfig:"UPDATE_PAGE_SIZE" default:"20"`
	FreshnessWindow      time.Duration `envconfig:"FRESHNESS_WINDOW" default:"5m"`
	UpstreamTimeout      time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`

	// Background incremental poll; 0 disables the poller.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"60s"`
}

// ResolveDefaults validates tuning values and derives AuthScheme from
// credential shape when it is not set explicitly.
func (c *Config) ResolveDefaults() error {
	if c.ConversationPageSize <= 0 || c.ConversationPageCap <= 0 {
		return fmt.Errorf("conversation page size and cap must be positive")
	}
	if c.HistoryPageCap <= 0 || c.UpdatePageSize <= 0 {
		return fmt.Errorf("history page cap and update page size must be positive")
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("freshness window must be positive")
	}

	if c.AuthScheme == "" {
		if c.SpruceAccessID != "" || c.SpruceAPIKey != "" {
			c.AuthScheme = AuthBasic
		} else if c.SpruceBearerToken != "" {
			c.AuthScheme = AuthBearer
		} else {
			c.AuthScheme = AuthBasic
		}
	}

	switch c.AuthScheme {
	case AuthBasic, AuthBearer:
	default:
		return fmt.Errorf("unsupported AUTH_SCHEME: %s", c.AuthScheme)
	}
	return nil
}

// BasicToken returns the Basic credential for the access-id/api-key pair.
// A key that already looks like a complete pre-encoded token is used as-is.
func (c *Config) BasicToken() string {
	if strings.HasPrefix(c.SpruceAPIKey, preEncodedBasicPrefix) {
		return c.SpruceAPIKey
	}
	if c.SpruceAccessID == "" && c.SpruceAPIKey == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(c.SpruceAccessID + ":" + c.SpruceAPIKey))
}

// New creates a new Config by parsing environment variables.
// Example: SPRUCE_SYNC_HTTP_PORT, SPRUCE_SYNC_DATA_DIR.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SPRUCE_SYNC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Int("port", cfg.HTTPPort).
		Str("spruce_base_url", cfg.SpruceBaseURL).
		Str("auth_scheme", string(cfg.AuthScheme)).
		Str("data_dir", cfg.DataDir).
		Int("conversation_page_size", cfg.ConversationPageSize).
		Dur("freshness_window", cfg.FreshnessWindow).
		Dur("poll_interval", cfg.PollInterval).
		Bool("basic_credentials_present", cfg.SpruceAccessID != "" || cfg.SpruceAPIKey != "").
		Bool("bearer_token_present", cfg.SpruceBearerToken != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config suitable for unit tests.
func NewForTesting() *Config {
	cfg := &Config{
		HTTPPort:             8090,
		SpruceBaseURL:        "http://localhost:0",
		SpruceAccessID:       "aid_test",
		SpruceAPIKey:         "key_test",
		SpruceBearerToken:    "bearer_test",
		DataDir:              "",
		ConversationPageSize: 200,
		ConversationPageCap:  100,
		HistoryPageCap:       20,
		UpdatePageSize:       20,
		FreshnessWindow:      5 * time.Minute,
		UpstreamTimeout:      30 * time.Second,
		PollInterval:         0,
	}
	_ = cfg.ResolveDefaults()
	return cfg
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
