package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed.
// In config JSON it accepts either a literal string or an environment
// reference of the form {"$env": "VAR_NAME"}, resolved at load time so no
// ambient environment reads happen inside request handling.
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// UnmarshalJSON resolves env references immediately
func (s *Secret) UnmarshalJSON(data []byte) error {
	value, err := resolveEnvRef(data)
	if err != nil {
		return err
	}
	*s = Secret(value)
	return nil
}

// EnvString is a plain string config value that also accepts {"$env": "VAR"}
type EnvString string

// UnmarshalJSON resolves env references immediately
func (s *EnvString) UnmarshalJSON(data []byte) error {
	value, err := resolveEnvRef(data)
	if err != nil {
		return err
	}
	*s = EnvString(value)
	return nil
}

func resolveEnvRef(data []byte) (string, error) {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		return literal, nil
	}

	var ref struct {
		Env string `json:"$env"`
	}
	if err := json.Unmarshal(data, &ref); err != nil || ref.Env == "" {
		return "", fmt.Errorf("expected string or {\"$env\": \"VAR_NAME\"}")
	}
	return os.Getenv(ref.Env), nil
}

// Duration accepts Go duration strings ("10s", "5m") or a number of seconds
type Duration time.Duration

// UnmarshalJSON parses either form
func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		parsed, err := time.ParseDuration(str)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", str, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("expected duration string or seconds")
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalJSON renders the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the standard library duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr           string   `json:"addr"`
	BaseURL        string   `json:"baseURL"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// UpstreamConfig configures the external identity provider API
type UpstreamConfig struct {
	APIURL    string   `json:"apiUrl"`
	SecretKey Secret   `json:"secretKey"`
	Timeout   Duration `json:"timeout,omitempty"`
}

// TicketConfig configures session handoff tickets
type TicketConfig struct {
	MaxTTL     Duration `json:"maxTtl,omitempty"`
	SigningKey Secret   `json:"signingKey,omitempty"`
}

// StorageKind selects the storage backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// StorageConfig configures handle and session tracking storage
type StorageConfig struct {
	Kind              StorageKind `json:"kind,omitempty"`
	GCPProject        string      `json:"gcpProject,omitempty"`
	FirestoreDatabase string      `json:"firestoreDatabase,omitempty"`
	Collection        string      `json:"collection,omitempty"`
}

// AdminConfig configures the basic-auth protected admin surface
type AdminConfig struct {
	Enabled  bool      `json:"enabled"`
	Username EnvString `json:"username"`
	Password Secret    `json:"password"`

	// Computed at load time, bcrypt hash of Password
	HashedPassword []byte `json:"-"`
}

// ProviderType identifies an alternative credential source
type ProviderType string

const (
	ProviderTypeOIDC   ProviderType = "oidc"
	ProviderTypeGitHub ProviderType = "github"
)

// ProviderConfig configures an OAuth/OIDC passthrough credential source
type ProviderConfig struct {
	Type         ProviderType `json:"type"`
	IssuerURL    string       `json:"issuerUrl,omitempty"`
	ClientID     EnvString    `json:"clientId"`
	ClientSecret Secret       `json:"clientSecret"`
	Scopes       []string     `json:"scopes,omitempty"`
}

// Config is the full service configuration, constructed once at process
// start and passed by reference into the components that need it
type Config struct {
	Version   string                    `json:"version"`
	Server    ServerConfig              `json:"server"`
	Upstream  UpstreamConfig            `json:"upstream"`
	Tickets   TicketConfig              `json:"tickets,omitempty"`
	Storage   StorageConfig             `json:"storage,omitempty"`
	Admin     *AdminConfig              `json:"admin,omitempty"`
	Providers map[string]ProviderConfig `json:"providers,omitempty"`
}
