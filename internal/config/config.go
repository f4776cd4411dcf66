package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"obralink/internal/access"
)

// Config models obralink.yml.
type Config struct {
	Server struct {
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
		DevLogin  bool   `yaml:"dev_login"`
	} `yaml:"server"`
	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"cache"`
	Roles    map[string]RoleConfig `yaml:"roles"`
	Webhooks []WebhookConfig       `yaml:"webhooks"`
}

type RoleConfig struct {
	Description  string   `yaml:"description"`
	Scope        string   `yaml:"scope"`
	Capabilities []string `yaml:"capabilities"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

var validScopes = map[string]bool{
	string(access.ScopeAll):         true,
	string(access.ScopeCoordinator): true,
	string(access.ScopeSupervisor):  true,
	string(access.ScopeNone):        true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for roleID, role := range c.Roles {
		if roleID == "" {
			return fmt.Errorf("config.roles contains empty role id")
		}
		if !validScopes[role.Scope] {
			return fmt.Errorf("role %s has invalid scope %q", roleID, role.Scope)
		}
		for _, cap := range role.Capabilities {
			if cap == "" {
				return fmt.Errorf("role %s has empty capability id", roleID)
			}
		}
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config.cache.ttl_seconds must not be negative")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d] has empty url", i)
		}
	}
	return nil
}

// Ruleset builds the access ruleset from configured roles, falling back to
// the built-in table when none are declared.
func (c *Config) Ruleset() access.Ruleset {
	if len(c.Roles) == 0 {
		return access.DefaultRuleset()
	}
	grants := make(map[access.Role]access.Grant, len(c.Roles))
	for roleID, role := range c.Roles {
		caps := make([]access.Capability, 0, len(role.Capabilities))
		for _, cap := range role.Capabilities {
			caps = append(caps, access.Capability(cap))
		}
		grants[access.Role(roleID)] = access.Grant{
			Scope:        access.Scope(role.Scope),
			Capabilities: caps,
		}
	}
	return access.NewRuleset(grants)
}

// CacheTTL returns the configured decision-cache TTL.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "obralink.yml")
}

// Load reads and validates config from a workspace, returning defaults when
// the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML, for `obra config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  base_path: /v1
  jwt_secret: ""
  dev_login: true

cache:
  ttl_seconds: 300

roles:
  GERENTE:
    description: "General management, blanket project visibility"
    scope: all
    capabilities: [project.create, project.delete, audit.read]

  PMO:
    description: "Project management office, blanket project visibility"
    scope: all
    capabilities: [project.create, project.delete, audit.read]

  COORDINADOR:
    description: "Sees and manages projects where they are the coordinator"
    scope: coordinator
    capabilities: [project.create]

  SUPERVISOR:
    description: "Sees projects where they are the supervisor"
    scope: supervisor

  EMPLEADO:
    description: "No direct project visibility"
    scope: none
`
