// Package config loads and validates autobib's YAML configuration: alias
// transform rules, the default conflict policy, on_insert hook toggles and
// a provider fetch timeout (a single value shared by every provider; there
// are no per-provider timeouts).
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const DefaultConflictPolicy = "prefer-current"
const defaultProviderTimeout = 10 * time.Second

// RawAliasRule is one configured alias-transform entry (spec §4.2): Pattern
// must compile as a regexp with exactly one capture group, Provider must
// be non-empty. Kept as raw strings in YAML; Config.validate compiles
// Pattern into the paired CompiledAliasRules slice, mirroring the
// teacher's TypeMaps -> ReTypeMaps split between source strings and their
// compiled form.
type RawAliasRule struct {
	Pattern  string `yaml:"pattern"`
	Provider string `yaml:"provider"`
}

// AliasRule is a RawAliasRule with its pattern compiled.
type AliasRule struct {
	Pattern  *regexp.Regexp
	Provider string
}

// OnInsertHooks toggles the optional normalizations of spec §4.3 applied to
// freshly fetched records.
type OnInsertHooks struct {
	CollapseWhitespace  bool `yaml:"collapse_whitespace"`
	StripJournalSeries  bool `yaml:"strip_journal_series"`
	SynthesizeEprint    bool `yaml:"synthesize_eprint"`
}

// Config is autobib's full configuration.
type Config struct {
	AliasRules      []RawAliasRule    `yaml:"alias_rules"`
	CreateAlias     bool              `yaml:"create_alias"`
	ConflictPolicy  string            `yaml:"conflict_policy"`
	NoInteractive   bool              `yaml:"no_interactive"`
	ProviderTimeout string            `yaml:"provider_timeout"`
	Hooks           OnInsertHooks     `yaml:"on_insert"`

	// CompiledAliasRules is populated by validate() from AliasRules, in
	// the same order.
	CompiledAliasRules []AliasRule `yaml:"-"`
	// Timeout is ProviderTimeout parsed, or defaultProviderTimeout.
	Timeout time.Duration `yaml:"-"`
}

// Unmarshal parses config, applies defaults, and validates it.
func Unmarshal(raw []byte) (*Config, error) {
	cfg := &Config{
		ConflictPolicy:  DefaultConflictPolicy,
		ProviderTimeout: defaultProviderTimeout.String(),
		Hooks: OnInsertHooks{
			CollapseWhitespace: true,
			StripJournalSeries: true,
			SynthesizeEprint:   true,
		},
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads and parses the YAML file at filename.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err)
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err)
	}
	return cfg, nil
}

// LoadConfigString parses content as YAML configuration.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

func (c *Config) validate() error {
	switch c.ConflictPolicy {
	case "prefer-current", "prefer-incoming", "prompt", "per-field":
	default:
		return fmt.Errorf("unknown conflict_policy %q: expected prefer-current, prefer-incoming, prompt or per-field", c.ConflictPolicy)
	}

	timeout, err := time.ParseDuration(c.ProviderTimeout)
	if err != nil {
		return fmt.Errorf("failed to parse provider_timeout %q: %v", c.ProviderTimeout, err)
	}
	c.Timeout = timeout

	c.CompiledAliasRules = make([]AliasRule, 0, len(c.AliasRules))
	for _, raw := range c.AliasRules {
		re, err := regexp.Compile(raw.Pattern)
		if err != nil {
			return fmt.Errorf("failed to parse '%s' as a regex", raw.Pattern)
		}
		if re.NumSubexp() != 1 {
			return fmt.Errorf("alias rule pattern '%s' must have exactly one capture group, has %d", raw.Pattern, re.NumSubexp())
		}
		if raw.Provider == "" {
			return fmt.Errorf("alias rule for pattern '%s' is missing a provider", raw.Pattern)
		}
		c.CompiledAliasRules = append(c.CompiledAliasRules, AliasRule{Pattern: re, Provider: raw.Provider})
	}

	if c.NoInteractive && c.ConflictPolicy == "prompt" {
		// Interactive prompts cannot be honored non-interactively; fall
		// back to the safe default (spec §5).
		c.ConflictPolicy = "prefer-current"
	}

	return nil
}
