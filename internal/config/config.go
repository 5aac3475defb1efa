package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tideline/internal/phase"
)

// Config models tideline.yml.
type Config struct {
	Trip struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"trip"`
	Transitions struct {
		Auto          bool                `yaml:"auto"`
		DataMigration bool                `yaml:"data_migration"`
		CheckInterval string              `yaml:"check_interval"`
		Rules         map[string]RuleSpec `yaml:"rules"`
	} `yaml:"transitions"`
	Phases map[string]PhaseSpec         `yaml:"phases"`
	Roles  map[string]phase.Permissions `yaml:"roles"`
}

// RuleSpec tunes a registered transition rule; the map key format is
// "from->to" (e.g. "preparation->live").
type RuleSpec struct {
	Enabled  *bool  `yaml:"enabled"`
	Cooldown string `yaml:"cooldown"`
	Priority *int   `yaml:"priority"`
}

type PhaseSpec struct {
	AllowManualEntry bool     `yaml:"allow_manual_entry"`
	AllowManualExit  bool     `yaml:"allow_manual_exit"`
	Auto             []string `yaml:"auto"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Trip.Kind != "" && c.Trip.Kind != "fishing-trip" {
		return fmt.Errorf("config.trip.kind must be 'fishing-trip'")
	}
	if c.Transitions.CheckInterval != "" {
		d, err := time.ParseDuration(c.Transitions.CheckInterval)
		if err != nil {
			return fmt.Errorf("config.transitions.check_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config.transitions.check_interval must be positive")
		}
	}
	for key, spec := range c.Transitions.Rules {
		if _, _, err := parseRuleKey(key); err != nil {
			return err
		}
		if spec.Cooldown != "" {
			if _, err := time.ParseDuration(spec.Cooldown); err != nil {
				return fmt.Errorf("rule %s cooldown: %w", key, err)
			}
		}
	}
	for name, spec := range c.Phases {
		if _, err := phase.Parse(name); err != nil {
			return fmt.Errorf("config.phases: %w", err)
		}
		for _, target := range spec.Auto {
			if _, err := phase.Parse(target); err != nil {
				return fmt.Errorf("config.phases.%s.auto: %w", name, err)
			}
		}
	}
	for role := range c.Roles {
		if phase.Role(role).Level() < 0 {
			return fmt.Errorf("config.roles contains unknown role %s", role)
		}
	}
	return nil
}

func parseRuleKey(key string) (phase.Phase, phase.Phase, error) {
	from, to, ok := strings.Cut(key, "->")
	if !ok {
		return "", "", fmt.Errorf("invalid rule key %q; expected from->to", key)
	}
	f, err := phase.Parse(strings.TrimSpace(from))
	if err != nil {
		return "", "", fmt.Errorf("rule key %q: %w", key, err)
	}
	t, err := phase.Parse(strings.TrimSpace(to))
	if err != nil {
		return "", "", fmt.Errorf("rule key %q: %w", key, err)
	}
	return f, t, nil
}

// ManagerConfig translates the yaml settings into the runtime config the
// transition manager consumes. Unset sections fall back to defaults.
func (c *Config) ManagerConfig() phase.Config {
	cfg := phase.DefaultConfig()
	cfg.AutoTransitions = c.Transitions.Auto
	cfg.DataMigration = c.Transitions.DataMigration
	if c.Transitions.CheckInterval != "" {
		if d, err := time.ParseDuration(c.Transitions.CheckInterval); err == nil && d > 0 {
			cfg.CheckInterval = d
		}
	}
	if len(c.Phases) > 0 {
		cfg.Phases = map[phase.Phase]phase.PhaseSettings{}
		for name, spec := range c.Phases {
			p, err := phase.Parse(name)
			if err != nil {
				continue
			}
			settings := phase.PhaseSettings{
				AllowManualEntry: spec.AllowManualEntry,
				AllowManualExit:  spec.AllowManualExit,
			}
			for _, target := range spec.Auto {
				if t, err := phase.Parse(target); err == nil {
					settings.AutoTransitions = append(settings.AutoTransitions, t)
				}
			}
			cfg.Phases[p] = settings
		}
	}
	return cfg
}

// RolePermissions returns the configured role capability map, falling back
// to the built-in defaults when the section is absent.
func (c *Config) RolePermissions() map[phase.Role]phase.Permissions {
	if len(c.Roles) == 0 {
		return phase.DefaultPermissions()
	}
	out := map[phase.Role]phase.Permissions{}
	for role, perms := range c.Roles {
		out[phase.Role(role)] = perms
	}
	return out
}

// ApplyRules overlays the configured rule tuning (enable/disable, cooldown,
// priority) onto a registered rule set.
func (c *Config) ApplyRules(rules *phase.RuleSet) {
	for key, spec := range c.Transitions.Rules {
		from, to, err := parseRuleKey(key)
		if err != nil {
			continue
		}
		rule := rules.Find(from, to)
		if rule == nil {
			continue
		}
		if spec.Enabled != nil {
			rules.SetEnabled(from, to, *spec.Enabled)
		}
		if spec.Cooldown != "" {
			if d, err := time.ParseDuration(spec.Cooldown); err == nil {
				rule.Cooldown = d
			}
		}
		if spec.Priority != nil {
			rule.Priority = *spec.Priority
		}
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tideline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(tripID string) string {
	return fmt.Sprintf(defaultTemplate, tripID)
}

// Default returns the default Config struct for a trip workspace.
func Default(tripID string) *Config {
	var cfg Config
	cfg.Trip.ID = tripID
	cfg.Trip.Kind = "fishing-trip"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, tripID))).Decode(&cfg)
	return &cfg
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `trip:
  id: %s
  kind: fishing-trip

transitions:
  auto: true
  data_migration: true
  check_interval: 30s
  rules:
    preparation->live:
      enabled: true
    live->debrief:
      enabled: true
    debrief->preparation:
      enabled: true
      cooldown: 30m

phases:
  preparation:
    allow_manual_entry: true
    allow_manual_exit: true
    auto: [live]
  live:
    allow_manual_entry: true
    allow_manual_exit: true
    auto: [debrief]
  debrief:
    allow_manual_entry: true
    allow_manual_exit: true

roles:
  angler: {}
  guide:
    can_trigger_manual: true
    allowed_phases: [live, debrief]
  captain:
    can_trigger_manual: true
    can_override_rules: true
    can_cancel_transitions: true
  admin:
    can_trigger_manual: true
    can_override_rules: true
    can_cancel_transitions: true
    can_edit_history: true
`
