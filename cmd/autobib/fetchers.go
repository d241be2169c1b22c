package main

import (
	"context"
	"fmt"

	"github.com/autobib/autobib/provider"
	"github.com/autobib/autobib/replaycache"
)

// unimplementedFetcher is the placeholder for the concrete HTTP client and
// per-provider response parsers that spec §1 names as external
// collaborators ("the concrete HTTP client and per-provider response
// parsers... individual parsers are not [specified]"). It gives every
// canonical provider a Fetcher so the registry is always fully populated;
// a real deployment replaces it with the provider-specific client.
type unimplementedFetcher struct {
	provider provider.Tag
}

func (f unimplementedFetcher) Fetch(ctx context.Context, subID string) (provider.FetchResult, error) {
	return provider.FetchResult{}, &provider.NetworkError{
		Provider: f.provider,
		Err:      fmt.Errorf("no remote client configured for provider %q", f.provider),
	}
}

// cachingFetcher answers from a replaycache in Replay mode (deterministic
// testing against canned responses) and otherwise delegates to inner,
// recording the result when the cache is open in Record mode.
type cachingFetcher struct {
	provider provider.Tag
	cache    *replaycache.Cache
	inner    provider.Fetcher
}

func (f *cachingFetcher) Fetch(ctx context.Context, subID string) (provider.FetchResult, error) {
	method := "FETCH"
	url := string(f.provider) + ":" + subID
	if f.cache != nil && f.cache.Stats().Mode == replaycache.Replay {
		if e, err := f.cache.Lookup(method, url, nil); err == nil {
			return decodeCachedFetch(e)
		} else if _, ok := err.(*replaycache.MissError); !ok {
			return provider.FetchResult{}, err
		}
	}
	result, err := f.inner.Fetch(ctx, subID)
	if err != nil {
		return result, err
	}
	if f.cache != nil {
		entry, encErr := encodeCachedFetch(result)
		if encErr == nil {
			_ = f.cache.Append(method, url, nil, entry)
		}
	}
	return result, nil
}

// buildRegistry wires every canonical provider to either a cachingFetcher
// (a response cache is open, in either mode) or the unimplemented
// placeholder, and attaches the registry's built-in
// pure-transform reference resolvers (jfm/zbl -> zbmath).
func buildRegistry(cache *replaycache.Cache) *provider.Registry {
	reg := provider.NewRegistry().DefaultResolvers()
	for _, tag := range reg.All() {
		c, ok := reg.Lookup(tag)
		if !ok || c.Kind != provider.KindCanonical || tag == provider.Local {
			// local has no remote to fetch from (spec §4.3): leave it
			// without a Fetcher so SupportsFetch(local) stays false and
			// an unbound local: lookup surfaces as an absence outcome
			// rather than a NetworkError.
			continue
		}
		base := unimplementedFetcher{provider: tag}
		if cache != nil {
			reg.WithFetcher(tag, &cachingFetcher{provider: tag, cache: cache, inner: base})
		} else {
			reg.WithFetcher(tag, base)
		}
	}
	return reg
}
