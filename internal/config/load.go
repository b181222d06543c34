package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgellow/authgate/internal/crypto"
	"github.com/dgellow/authgate/internal/log"
)

// Defaults applied when the config file omits optional settings
const (
	DefaultUpstreamTimeout = 10 * time.Second
	DefaultTicketMaxTTL    = 10 * time.Minute
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	if config.Version == "" {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(config.Version, "v1") {
		return Config{}, fmt.Errorf("unsupported config version: %s", config.Version)
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	if config.Admin != nil && config.Admin.Enabled {
		hashed, err := crypto.HashPassword(string(config.Admin.Password))
		if err != nil {
			return Config{}, fmt.Errorf("hashing admin password: %w", err)
		}
		config.Admin.HashedPassword = hashed
		// Plaintext is no longer needed once hashed
		config.Admin.Password = ""
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Upstream.Timeout == 0 {
		config.Upstream.Timeout = Duration(DefaultUpstreamTimeout)
	}
	if config.Tickets.MaxTTL == 0 {
		config.Tickets.MaxTTL = Duration(DefaultTicketMaxTTL)
	}
	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageKindMemory
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":4000"
	}
}

// Validate validates the resolved configuration
func Validate(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if config.Upstream.APIURL == "" {
		return fmt.Errorf("upstream.apiUrl is required")
	}
	if strings.HasSuffix(config.Upstream.APIURL, "/") {
		return fmt.Errorf("upstream.apiUrl must not end with a slash")
	}

	// A missing secret is not fatal at load: each sign-in request fails
	// individually with a configuration error, matching the service's
	// degrade-per-request behavior
	if config.Upstream.SecretKey == "" {
		log.LogWarnWithFields("config", "upstream.secretKey is not set, sign-in requests will fail", nil)
	}

	if ttl := config.Tickets.MaxTTL.Std(); ttl <= 0 || ttl > DefaultTicketMaxTTL {
		return fmt.Errorf("tickets.maxTtl must be positive and at most %s", DefaultTicketMaxTTL)
	}

	if config.Storage.Kind != StorageKindMemory && config.Storage.Kind != StorageKindFirestore {
		return fmt.Errorf("storage.kind must be %q or %q", StorageKindMemory, StorageKindFirestore)
	}
	if config.Storage.Kind == StorageKindFirestore && config.Storage.GCPProject == "" {
		return fmt.Errorf("storage.gcpProject is required for firestore storage")
	}

	if config.Admin != nil && config.Admin.Enabled {
		if config.Admin.Username == "" || config.Admin.Password == "" {
			return fmt.Errorf("admin.username and admin.password are required when admin is enabled")
		}
	}

	for name, provider := range config.Providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	switch provider.Type {
	case ProviderTypeOIDC:
		if provider.IssuerURL == "" {
			return fmt.Errorf("provider %s: issuerUrl is required for oidc providers", name)
		}
	case ProviderTypeGitHub:
		// GitHub endpoints are fixed, no issuer needed
	default:
		return fmt.Errorf("provider %s: unknown type %q", name, provider.Type)
	}

	if provider.ClientID == "" || provider.ClientSecret == "" {
		return fmt.Errorf("provider %s: clientId and clientSecret are required", name)
	}
	return nil
}
