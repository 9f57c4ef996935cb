package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Resource type for token introspection providers
type ResourceType string

const (
	IntrospectionResource ResourceType = "introspection" // remote RFC 7662 endpoint
	JWTResource           ResourceType = "jwt"           // local validation against a JWKS
)

// Client authentication methods for the introspection endpoint
const (
	AuthMethodBasic  = "client_secret_basic"
	AuthMethodBearer = "bearer"
	AuthMethodNone   = "none"
)

// Cache drivers
const (
	MemoryCacheDriver = "memory"
	RedisCacheDriver  = "redis"
)

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// ResourceConfig declares one introspection provider the policy can delegate to.
type ResourceConfig struct {
	Name string       `yaml:"name"`
	Type ResourceType `yaml:"type"`

	// For type: introspection
	IntrospectionEndpoint string `yaml:"introspection_endpoint,omitempty"`
	DiscoveryURL          string `yaml:"discovery_url,omitempty"` // well-known document naming the endpoint
	AuthMethod            string `yaml:"auth_method,omitempty"`
	ClientID              string `yaml:"client_id,omitempty"`
	ClientSecret          string `yaml:"client_secret,omitempty"`
	BearerToken           string `yaml:"bearer_token,omitempty"`
	TokenTypeHint         string `yaml:"token_type_hint,omitempty"`
	TimeoutSeconds        int    `yaml:"timeout_seconds,omitempty"` // 0 means the global timeout

	// For type: jwt
	JWKSURL  string `yaml:"jwks_url,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	Cache bool `yaml:"cache"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type CacheConfig struct {
	Driver             string      `yaml:"driver"`
	TTLSeconds         int         `yaml:"ttl_seconds"`
	NegativeTTLSeconds int         `yaml:"negative_ttl_seconds"`
	Redis              RedisConfig `yaml:"redis"`
}

// MetadataConfig controls the protected-resource metadata document
type MetadataConfig struct {
	Enabled              bool     `yaml:"enabled"`
	Resource             string   `yaml:"resource"`
	AuthorizationServers []string `yaml:"authorization_servers"`
	ScopesSupported      []string `yaml:"scopes_supported"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type UpstreamConfig struct {
	Command            string   `yaml:"command,omitempty"` // optional supervised upstream process
	Args               []string `yaml:"args,omitempty"`
	WorkDir            string   `yaml:"work_dir,omitempty"`
	Env                []string `yaml:"env,omitempty"`
	IdentityHeaders    bool     `yaml:"identity_headers"`
	PayloadHeader      bool     `yaml:"payload_header"`
	StripAuthorization bool     `yaml:"strip_authorization"`
}

// OAuth2Config configures the bearer-token validation policy
type OAuth2Config struct {
	OAuthResource       string   `yaml:"oauth_resource"`
	CheckRequiredScopes bool     `yaml:"check_required_scopes"`
	RequiredScopes      []string `yaml:"required_scopes"`
	ExtractPayload      bool     `yaml:"extract_payload"`
}

type Config struct {
	ListenPort     int               `yaml:"listen_port"`
	BaseURL        string            `yaml:"base_url"` // upstream service
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	PathMapping    map[string]string `yaml:"path_mapping"`
	PublicPaths    []string          `yaml:"public_paths"` // proxied without token validation
	CORSConfig     CORSConfig        `yaml:"cors"`
	Metadata       MetadataConfig    `yaml:"metadata"`
	Metrics        MetricsConfig     `yaml:"metrics"`
	Cache          CacheConfig       `yaml:"cache"`
	Upstream       UpstreamConfig    `yaml:"upstream"`
	Resources      []ResourceConfig  `yaml:"resources"`
	OAuth2         OAuth2Config      `yaml:"oauth2"`
}

// Validate checks resource declarations and the policy's resource reference
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	names := make(map[string]bool)
	for i := range c.Resources {
		r := &c.Resources[i]
		if r.Name == "" {
			return fmt.Errorf("resources[%d].name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("duplicate resource name %q", r.Name)
		}
		names[r.Name] = true

		switch r.Type {
		case IntrospectionResource:
			if r.IntrospectionEndpoint == "" && r.DiscoveryURL == "" {
				return fmt.Errorf("resource %q: introspection_endpoint or discovery_url is required", r.Name)
			}
			if r.AuthMethod == "" {
				if r.ClientID != "" {
					r.AuthMethod = AuthMethodBasic // Default when client credentials are present
				} else if r.BearerToken != "" {
					r.AuthMethod = AuthMethodBearer
				} else {
					r.AuthMethod = AuthMethodNone
				}
			}
			switch r.AuthMethod {
			case AuthMethodBasic:
				if r.ClientID == "" {
					return fmt.Errorf("resource %q: client_id is required for %s", r.Name, AuthMethodBasic)
				}
			case AuthMethodBearer:
				if r.BearerToken == "" {
					return fmt.Errorf("resource %q: bearer_token is required for %s auth", r.Name, AuthMethodBearer)
				}
			case AuthMethodNone:
			default:
				return fmt.Errorf("resource %q: unknown auth_method %q", r.Name, r.AuthMethod)
			}
		case JWTResource:
			if r.JWKSURL == "" {
				return fmt.Errorf("resource %q: jwks_url is required", r.Name)
			}
		case "":
			return fmt.Errorf("resource %q: type is required", r.Name)
		default:
			return fmt.Errorf("resource %q: unknown type %q", r.Name, r.Type)
		}
	}

	if c.OAuth2.OAuthResource != "" && !names[c.OAuth2.OAuthResource] {
		return fmt.Errorf("oauth2.oauth_resource %q does not match any declared resource", c.OAuth2.OAuthResource)
	}

	if c.Metadata.Enabled && c.Metadata.Resource == "" {
		return fmt.Errorf("metadata.resource is required when metadata is enabled")
	}

	// Cache defaults
	if c.Cache.Driver == "" {
		c.Cache.Driver = MemoryCacheDriver
	}
	switch c.Cache.Driver {
	case MemoryCacheDriver:
	case RedisCacheDriver:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 60
	}
	if c.Cache.NegativeTTLSeconds == 0 {
		c.Cache.NegativeTTLSeconds = 10
	}

	return nil
}

// CacheEnabled reports whether any declared resource asks for result caching
func (c *Config) CacheEnabled() bool {
	for _, r := range c.Resources {
		if r.Cache {
			return true
		}
	}
	return false
}

// LoadConfig reads a YAML config file into Config struct. Values may
// reference environment variables as ${VAR}, so secrets can stay out of
// the file itself.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}

	// Set default values
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 15 // default
	}

	// Set default port if not specified
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 8000 // default
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
