// Package provider defines the fixed registry of bibliographic providers
// and the capability interface each one exposes: sub-id validation and
// normalization, reference resolution, and remote fetch.
//
// The registry is a closed set (spec §4.3): arxiv, doi, mr, ol, zbmath and
// local are canonical; isbn references ol; jfm and zbl reference zbmath.
// Per spec §1 the concrete HTTP client and response parsers are external
// collaborators — Fetcher is the abstract seam they plug into.
package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/autobib/autobib/record"
)

// Tag names a provider namespace.
type Tag string

const (
	Arxiv  Tag = "arxiv"
	DOI    Tag = "doi"
	ISBN   Tag = "isbn"
	JFM    Tag = "jfm"
	Local  Tag = "local"
	MR     Tag = "mr"
	OL     Tag = "ol"
	ZBL    Tag = "zbl"
	ZBMath Tag = "zbmath"
)

// Kind is whether a provider is canonical or resolves to one.
type Kind int

const (
	KindCanonical Kind = iota
	KindReference
)

// FetchResult is the outcome of a canonical provider's remote fetch.
type FetchResult struct {
	Status FetchStatus
	Data   record.Data
}

// FetchStatus classifies a fetch outcome.
type FetchStatus int

const (
	FetchEntry FetchStatus = iota
	FetchNotFound
	FetchNetworkError
)

// NetworkError wraps a transient fetch failure (timeout, TLS, non-2xx).
type NetworkError struct {
	Provider Tag
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Fetcher performs the remote lookup for a canonical provider's sub-id. The
// concrete implementation (HTTP client + per-provider response parsing) is
// an external collaborator not specified here; autobib's provider package
// only defines the seam and the registry metadata around it.
type Fetcher interface {
	Fetch(ctx context.Context, subID string) (FetchResult, error)
}

// Resolver maps a reference provider's sub-id to a canonical identifier.
type Resolver interface {
	Resolve(ctx context.Context, subID string) (canonicalProvider Tag, canonicalSubID string, err error)
}

// Capability describes one provider's behavior.
type Capability struct {
	Tag  Tag
	Kind Kind
	// Of is the canonical provider a reference provider resolves to.
	// Only meaningful when Kind == KindReference.
	Of Tag

	// Validate reports whether subID is syntactically acceptable.
	Validate func(subID string) error
	// Normalize idempotently rewrites subID (e.g. lower-casing a DOI
	// prefix, stripping an arXiv version suffix, canonicalizing an ISBN).
	Normalize func(subID string) (string, error)

	Fetcher  Fetcher  // nil for providers with no remote fetch (local)
	Resolver Resolver // set only for KindReference providers
}

// Registry is the fixed, closed mapping from Tag to Capability.
type Registry struct {
	caps map[Tag]Capability
}

// NewRegistry builds the fixed registry with the default syntactic rules for
// every provider named in spec §4.3. Fetchers/Resolvers default to nil;
// WithFetcher/WithResolver attach the caller's concrete implementations
// (injected, per spec §1, rather than hard-coded here).
func NewRegistry() *Registry {
	r := &Registry{caps: make(map[Tag]Capability)}
	r.caps[Arxiv] = Capability{Tag: Arxiv, Kind: KindCanonical, Validate: validateArxiv, Normalize: normalizeArxiv}
	r.caps[DOI] = Capability{Tag: DOI, Kind: KindCanonical, Validate: validateDOI, Normalize: normalizeDOI}
	r.caps[MR] = Capability{Tag: MR, Kind: KindCanonical, Validate: validateMR, Normalize: normalizeMR}
	r.caps[OL] = Capability{Tag: OL, Kind: KindCanonical, Validate: validateOL, Normalize: normalizeOL}
	r.caps[ZBMath] = Capability{Tag: ZBMath, Kind: KindCanonical, Validate: validateZBMath, Normalize: normalizeZBMath}
	r.caps[Local] = Capability{Tag: Local, Kind: KindCanonical, Validate: validateLocal, Normalize: normalizeLocal}
	r.caps[ISBN] = Capability{Tag: ISBN, Kind: KindReference, Of: OL, Validate: validateISBN, Normalize: normalizeISBN}
	r.caps[JFM] = Capability{Tag: JFM, Kind: KindReference, Of: ZBMath, Validate: validateJFM, Normalize: normalizeJFM}
	r.caps[ZBL] = Capability{Tag: ZBL, Kind: KindReference, Of: ZBMath, Validate: validateZBL, Normalize: normalizeZBL}
	return r
}

// WithFetcher attaches f as the remote-fetch implementation for a canonical
// provider. It is a no-op if tag is unknown or not canonical.
func (r *Registry) WithFetcher(tag Tag, f Fetcher) *Registry {
	if c, ok := r.caps[tag]; ok && c.Kind == KindCanonical {
		c.Fetcher = f
		r.caps[tag] = c
	}
	return r
}

// WithResolver attaches a resolver for a reference provider.
func (r *Registry) WithResolver(tag Tag, res Resolver) *Registry {
	if c, ok := r.caps[tag]; ok && c.Kind == KindReference {
		c.Resolver = res
		r.caps[tag] = c
	}
	return r
}

// Lookup returns the capability for tag.
func (r *Registry) Lookup(tag Tag) (Capability, bool) {
	c, ok := r.caps[tag]
	return c, ok
}

// Normalize implements identifier.Validator: it recognizes a provider by its
// lowercase tag string, validates and normalizes subID, and reports ok=false
// for unrecognized providers.
func (r *Registry) Normalize(providerStr, subID string) (string, bool, error) {
	c, ok := r.caps[Tag(providerStr)]
	if !ok {
		return "", false, nil
	}
	if c.Validate != nil {
		if err := c.Validate(subID); err != nil {
			return "", true, err
		}
	}
	norm := subID
	if c.Normalize != nil {
		n, err := c.Normalize(subID)
		if err != nil {
			return "", true, err
		}
		norm = n
	}
	return norm, true, nil
}

// IsReference implements identifier.Validator.
func (r *Registry) IsReference(providerStr string) bool {
	c, ok := r.caps[Tag(providerStr)]
	return ok && c.Kind == KindReference
}

// All returns every registered tag, in a stable order, for iteration (e.g.
// completions, diagnostics).
func (r *Registry) All() []Tag {
	out := make([]Tag, 0, len(r.caps))
	for _, t := range []Tag{Arxiv, DOI, ISBN, JFM, Local, MR, OL, ZBL, ZBMath} {
		if _, ok := r.caps[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

var providerTagPattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// ValidTagSyntax reports whether s has the shape a provider tag must have,
// independent of whether it is actually registered (spec §6).
func ValidTagSyntax(s string) bool {
	return providerTagPattern.MatchString(s)
}

func trimLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
