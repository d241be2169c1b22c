package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// pureResolver adapts a stateless sub-id transform into a Resolver, for
// reference providers whose mapping is a pure function rather than a
// network call (spec §4.3: "resolve(sub_id) ... may perform a remote lookup
// or a pure transformation").
type pureResolver struct {
	canonical Tag
	transform func(subID string) (string, error)
}

func (p pureResolver) Resolve(_ context.Context, subID string) (Tag, string, error) {
	sub, err := p.transform(subID)
	if err != nil {
		return "", "", err
	}
	return p.canonical, sub, nil
}

// DefaultResolvers attaches the built-in pure-transform resolvers for jfm
// and zbl (both map to zbmath). isbn's ol mapping requires a live OpenLibrary
// lookup and is left to the caller to inject via WithResolver.
func (r *Registry) DefaultResolvers() *Registry {
	r.WithResolver(JFM, pureResolver{canonical: ZBMath, transform: zbmathIDFromJFM})
	r.WithResolver(ZBL, pureResolver{canonical: ZBMath, transform: zbmathIDFromZBL})
	return r
}

func zbmathIDFromJFM(jfm string) (string, error) {
	// same digit-concatenation scheme as zbl, over all parts of NN.NNNN.NN
	n, err := strconv.Atoi(strings.ReplaceAll(jfm, ".", ""))
	if err != nil {
		return "", fmt.Errorf("malformed jfm id %q", jfm)
	}
	return fmt.Sprintf("%08d", n), nil
}

// Resolve resolves a reference identifier to its canonical (provider, sub_id).
func (r *Registry) Resolve(ctx context.Context, tag Tag, subID string) (Tag, string, error) {
	c, ok := r.caps[tag]
	if !ok || c.Kind != KindReference {
		return "", "", fmt.Errorf("%q is not a reference provider", tag)
	}
	if c.Resolver == nil {
		return "", "", fmt.Errorf("no resolver configured for reference provider %q", tag)
	}
	return c.Resolver.Resolve(ctx, subID)
}

// Fetch performs a canonical provider's remote fetch.
func (r *Registry) Fetch(ctx context.Context, tag Tag, subID string) (FetchResult, error) {
	c, ok := r.caps[tag]
	if !ok || c.Kind != KindCanonical {
		return FetchResult{}, fmt.Errorf("%q is not a canonical provider", tag)
	}
	if c.Fetcher == nil {
		return FetchResult{}, fmt.Errorf("provider %q supports no remote fetch", tag)
	}
	return c.Fetcher.Fetch(ctx, subID)
}

// SupportsFetch reports whether tag has a remote fetch implementation
// attached (local never does).
func (r *Registry) SupportsFetch(tag Tag) bool {
	c, ok := r.caps[tag]
	return ok && c.Kind == KindCanonical && c.Fetcher != nil
}
