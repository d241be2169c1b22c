package main

import (
	"github.com/autobib/autobib/config"
	"github.com/autobib/autobib/edittree"
	"github.com/autobib/autobib/provider"
	"github.com/autobib/autobib/resolve"
)

// onInsertHooks builds the hook chain configured by cfg.Hooks. synthesize_eprint
// is not wired here: provider.SynthesizeEprint needs the fetched canonical
// sub-id, which this generic, provider-agnostic chain does not have access
// to (resolve.Resolver applies one hook uniformly across every canonical
// provider). Wiring it would require a per-provider hook map in package
// resolve; left as a seam for the arxiv Fetcher itself to fill in, since it
// alone knows its own sub-id at fetch time.
func onInsertHooks(cfg *config.Config) provider.OnInsertHook {
	var hooks []provider.OnInsertHook
	if cfg.Hooks.CollapseWhitespace {
		hooks = append(hooks, provider.CollapseWhitespace)
	}
	if cfg.Hooks.StripJournalSeries {
		hooks = append(hooks, provider.StripJournalSeries)
	}
	if len(hooks) == 0 {
		return nil
	}
	return provider.Chain(hooks...)
}

// aliasRules converts the compiled config rules into resolve's form.
func aliasRules(cfg *config.Config) []resolve.AliasRule {
	out := make([]resolve.AliasRule, 0, len(cfg.CompiledAliasRules))
	for _, r := range cfg.CompiledAliasRules {
		out = append(out, resolve.AliasRule{Pattern: r.Pattern, Provider: provider.Tag(r.Provider)})
	}
	return out
}

// conflictPolicy maps the configured string to edittree's enum.
func conflictPolicy(s string) edittree.ConflictPolicy {
	switch s {
	case "prefer-incoming":
		return edittree.PreferIncoming
	case "prompt":
		return edittree.Prompt
	case "per-field":
		return edittree.PerField
	default:
		return edittree.PreferCurrent
	}
}
