package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := loadOrFail(t, "")
	assert.Equal(t, DefaultConflictPolicy, cfg.ConflictPolicy)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.True(t, cfg.Hooks.CollapseWhitespace)
	assert.True(t, cfg.Hooks.StripJournalSeries)
	assert.True(t, cfg.Hooks.SynthesizeEprint)
	assert.Empty(t, cfg.AliasRules)
	assert.Empty(t, cfg.CompiledAliasRules)
}

func TestAliasRuleCompiles(t *testing.T) {
	const cfgString = `
alias_rules:
  - pattern: '^zbMATH([0-9]{8})$'
    provider: zbmath
create_alias: true
`
	cfg := loadOrFail(t, cfgString)
	assert.True(t, cfg.CreateAlias)
	assert.Len(t, cfg.CompiledAliasRules, 1)
	m := cfg.CompiledAliasRules[0].Pattern.FindStringSubmatch("zbMATH06346461")
	assert.Equal(t, []string{"zbMATH06346461", "06346461"}, m)
	assert.Equal(t, "zbmath", cfg.CompiledAliasRules[0].Provider)
}

func TestAliasRuleRequiresExactlyOneCaptureGroup(t *testing.T) {
	ensureFail(t, `
alias_rules:
  - pattern: '^zbMATH[0-9]{8}$'
    provider: zbmath
`, "missing capture group")

	ensureFail(t, `
alias_rules:
  - pattern: '^zbMATH([0-9]{4})([0-9]{4})$'
    provider: zbmath
`, "too many capture groups")
}

func TestAliasRuleRequiresProvider(t *testing.T) {
	ensureFail(t, `
alias_rules:
  - pattern: '^(x)$'
`, "missing provider")
}

func TestBadRegexFails(t *testing.T) {
	ensureFail(t, `
alias_rules:
  - pattern: '('
    provider: doi
`, "invalid regex")
}

func TestUnknownConflictPolicyFails(t *testing.T) {
	ensureFail(t, `conflict_policy: whatever`, "unknown conflict_policy")
}

func TestBadProviderTimeoutFails(t *testing.T) {
	ensureFail(t, `provider_timeout: not-a-duration`, "bad duration")
}

func TestNoInteractivePromptFallsBackToPreferCurrent(t *testing.T) {
	cfg := loadOrFail(t, `
conflict_policy: prompt
no_interactive: true
`)
	assert.Equal(t, "prefer-current", cfg.ConflictPolicy)
}

func TestHooksCanBeDisabled(t *testing.T) {
	cfg := loadOrFail(t, `
on_insert:
  collapse_whitespace: false
  strip_journal_series: false
  synthesize_eprint: false
`)
	assert.False(t, cfg.Hooks.CollapseWhitespace)
	assert.False(t, cfg.Hooks.StripJournalSeries)
	assert.False(t, cfg.Hooks.SynthesizeEprint)
}

func ensureFail(t *testing.T, cfgString string, desc string) {
	_, err := Unmarshal([]byte(cfgString))
	if err == nil {
		t.Fatalf("Expected config err not found: %s", desc)
	}
	t.Logf("Config err: %v", err.Error())
}

func loadOrFail(t *testing.T, cfgString string) *Config {
	cfg, err := Unmarshal([]byte(cfgString))
	if err != nil {
		t.Fatalf("Failed to read config: %v", err.Error())
	}
	return cfg
}
