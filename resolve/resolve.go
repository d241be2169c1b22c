// Package resolve implements the resolution pipeline of spec §4.6: turning
// a user-supplied identifier string into an Outcome, consulting the local
// store first and falling back to a provider fetch, with the negative
// cache and reference-resolution caching invariants (P5-P7) maintained
// along the way.
package resolve

import (
	"context"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autobib/autobib/identifier"
	"github.com/autobib/autobib/provider"
	"github.com/autobib/autobib/record"
	"github.com/autobib/autobib/store"
)

// Kind classifies a resolution Outcome.
type Kind int

const (
	KindEntry Kind = iota
	KindNullRemote
	KindNullAlias
	KindDeleted
	KindBadIdentifier
	KindNetworkError
	KindDatabaseError
)

func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindNullRemote:
		return "null-remote"
	case KindNullAlias:
		return "null-alias"
	case KindDeleted:
		return "deleted"
	case KindBadIdentifier:
		return "bad-identifier"
	case KindNetworkError:
		return "network-error"
	case KindDatabaseError:
		return "database-error"
	default:
		return "unknown"
	}
}

// Outcome is the result of Resolve.
type Outcome struct {
	Kind Kind
	// Name is the identifier name that was actually resolved (post alias
	// transform/reference resolution), for diagnostics.
	Name string
	// Record is populated for KindEntry.
	Record record.Data
	// Key is the store row key backing Record, when applicable.
	Key int64
	// Replacement is populated for KindDeleted when the tombstone carries
	// a replacement canonical id.
	Replacement *string
	// Err carries the underlying error for KindBadIdentifier,
	// KindNetworkError and KindDatabaseError.
	Err error
}

// AliasRule is one entry of the configured alias-transform list (spec §4.2):
// Pattern must have exactly one capture group; a match rewrites the alias
// to Provider:capture after the provider's validation and normalization
// (a reference identifier when Provider is a reference provider). A rule
// whose capture fails validation is passed over.
type AliasRule struct {
	Pattern  *regexp.Regexp
	Provider provider.Tag
}

// Resolver runs the resolution pipeline over a store and a provider
// registry.
type Resolver struct {
	db         *store.Store
	registry   *provider.Registry
	hooks      provider.OnInsertHook
	aliasRules []AliasRule
	createAlias bool
	log        *logrus.Logger
	now        func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOnInsertHooks sets the hook chain applied to freshly fetched entries.
func WithOnInsertHooks(h provider.OnInsertHook) Option {
	return func(r *Resolver) { r.hooks = h }
}

// WithAliasRules sets the ordered alias-transform list.
func WithAliasRules(rules []AliasRule, createAlias bool) Option {
	return func(r *Resolver) {
		r.aliasRules = rules
		r.createAlias = createAlias
	}
}

// New constructs a Resolver.
func New(db *store.Store, registry *provider.Registry, log *logrus.Logger, opts ...Option) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Resolver{db: db, registry: registry, log: log, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve runs the full pipeline of spec §4.6 for a single input string.
func (r *Resolver) Resolve(ctx context.Context, input string) Outcome {
	id, err := identifier.Parse(input, r.registry)
	if err != nil {
		return Outcome{Kind: KindBadIdentifier, Name: input, Err: err}
	}

	var createAliasName string
	if id.Kind == identifier.KindAlias {
		if transformed, ok := r.transformAlias(id.Alias); ok {
			if r.createAlias {
				createAliasName = id.Alias
			}
			id = transformed
		}
	}

	// Fast path: already indexed under this exact name.
	if id.Kind != identifier.KindRevision {
		name := id.Name()
		out, hit, err := r.fastPath(name)
		if err != nil {
			return Outcome{Kind: KindDatabaseError, Name: name, Err: err}
		}
		if hit {
			if createAliasName != "" {
				if aerr := r.bindAlias(createAliasName, out.Key); aerr != nil {
					r.log.WithError(aerr).Warn("create_alias binding failed")
				}
			}
			return out
		}
	}

	switch id.Kind {
	case identifier.KindRevision:
		return r.resolveRevision(id)
	case identifier.KindAlias:
		return Outcome{Kind: KindNullAlias, Name: id.Name()}
	case identifier.KindReference:
		out := r.resolveReference(ctx, id)
		if out.Kind == KindEntry && createAliasName != "" {
			if aerr := r.bindAlias(createAliasName, out.Key); aerr != nil {
				r.log.WithError(aerr).Warn("create_alias binding failed")
			}
		}
		return out
	case identifier.KindCanonical:
		out := r.resolveCanonical(ctx, id.Provider, id.SubID)
		if out.Kind == KindEntry && createAliasName != "" {
			if aerr := r.bindAlias(createAliasName, out.Key); aerr != nil {
				r.log.WithError(aerr).Warn("create_alias binding failed")
			}
		}
		return out
	default:
		return Outcome{Kind: KindBadIdentifier, Name: input}
	}
}

func (r *Resolver) transformAlias(alias string) (identifier.Identifier, bool) {
	for _, rule := range r.aliasRules {
		m := rule.Pattern.FindStringSubmatch(alias)
		if m == nil || len(m) < 2 {
			continue
		}
		normalized, ok, err := r.registry.Normalize(string(rule.Provider), m[1])
		if err != nil || !ok {
			continue
		}
		kind := identifier.KindCanonical
		if r.registry.IsReference(string(rule.Provider)) {
			kind = identifier.KindReference
		}
		return identifier.Identifier{Kind: kind, Provider: string(rule.Provider), SubID: normalized}, true
	}
	return identifier.Identifier{}, false
}

func (r *Resolver) bindAlias(name string, key int64) error {
	return r.db.WithTx(func(tx *store.Tx) error {
		return tx.AddIdentifier(name, key)
	})
}

func (r *Resolver) fastPath(name string) (Outcome, bool, error) {
	var out Outcome
	hit := false
	err := r.db.WithTx(func(tx *store.Tx) error {
		res, err := tx.Lookup(name)
		if err != nil {
			var niErr *store.NotIndexedError
			if asNotIndexed(err, &niErr) {
				return nil
			}
			return err
		}
		hit = true
		out = outcomeFromRow(name, res.Key, res.Record)
		return nil
	})
	return out, hit, err
}

func asNotIndexed(err error, target **store.NotIndexedError) bool {
	ni, ok := err.(*store.NotIndexedError)
	if ok {
		*target = ni
	}
	return ok
}

func outcomeFromRow(name string, key int64, row store.Row) Outcome {
	switch row.Variant {
	case record.Deleted:
		var repl *string
		if len(row.Data) > 0 {
			s := string(row.Data)
			repl = &s
		}
		return Outcome{Kind: KindDeleted, Name: name, Key: key, Replacement: repl}
	case record.Void:
		return Outcome{Kind: KindNullRemote, Name: name, Key: key}
	default:
		d, err := record.Decode(row.Data)
		if err != nil {
			return Outcome{Kind: KindDatabaseError, Name: name, Key: key, Err: err}
		}
		return Outcome{Kind: KindEntry, Name: name, Key: key, Record: d}
	}
}

func (r *Resolver) resolveRevision(id identifier.Identifier) Outcome {
	name := id.Name()
	var out Outcome
	err := r.db.WithTx(func(tx *store.Tx) error {
		row, ok, err := tx.GetByKey(int64(id.Revision))
		if err != nil {
			return err
		}
		if !ok {
			out = Outcome{Kind: KindBadIdentifier, Name: name}
			return nil
		}
		out = outcomeFromRow(name, row.Key, row)
		return nil
	})
	if err != nil {
		return Outcome{Kind: KindDatabaseError, Name: name, Err: err}
	}
	return out
}

func (r *Resolver) resolveReference(ctx context.Context, id identifier.Identifier) Outcome {
	name := id.Name()
	canonTag, canonSub, err := r.registry.Resolve(ctx, provider.Tag(id.Provider), id.SubID)
	if err != nil {
		return Outcome{Kind: KindBadIdentifier, Name: name, Err: err}
	}
	out := r.resolveCanonical(ctx, string(canonTag), canonSub)
	if out.Kind == KindEntry {
		if aerr := r.bindAlias(name, out.Key); aerr != nil {
			if _, dup := aerr.(*store.AliasExistsError); !dup {
				r.log.WithError(aerr).Warn("reference binding failed")
			}
		}
	}
	out.Name = name
	return out
}

func (r *Resolver) resolveCanonical(ctx context.Context, providerStr, subID string) Outcome {
	canonicalName := providerStr + ":" + subID

	type localCheck struct {
		negCache bool
		rebind   bool
		out      Outcome
	}
	var lc localCheck
	err := r.db.WithTx(func(tx *store.Tx) error {
		if _, found, err := tx.NullQuery(canonicalName); err != nil {
			return err
		} else if found {
			lc.negCache = true
			return nil
		}
		exists, err := tx.RecordExists(canonicalName)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		// Tree exists; see if it is currently indexed.
		if _, err := tx.Lookup(canonicalName); err == nil {
			// Already handled by the fast path above in the normal flow, but
			// guard against a race between fast path and here.
			return nil
		} else if _, ok := err.(*store.NotIndexedError); !ok {
			return err
		}
		active, ok, err := tx.ActiveRow(canonicalName)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := tx.AddIdentifier(canonicalName, active.Key); err != nil {
			return err
		}
		lc.rebind = true
		lc.out = outcomeFromRow(canonicalName, active.Key, active)
		return nil
	})
	if err != nil {
		return Outcome{Kind: KindDatabaseError, Name: canonicalName, Err: err}
	}
	if lc.negCache {
		return Outcome{Kind: KindNullRemote, Name: canonicalName}
	}
	if lc.rebind {
		return lc.out
	}

	// Provider fetch happens outside any open transaction (spec §5).
	fr, err := r.registry.Fetch(ctx, provider.Tag(providerStr), subID)
	if err != nil {
		return Outcome{Kind: KindNetworkError, Name: canonicalName, Err: err}
	}

	switch fr.Status {
	case provider.FetchNotFound:
		werr := r.db.WithTx(func(tx *store.Tx) error {
			return tx.NullMark(canonicalName, r.now())
		})
		if werr != nil {
			return Outcome{Kind: KindDatabaseError, Name: canonicalName, Err: werr}
		}
		return Outcome{Kind: KindNullRemote, Name: canonicalName}
	case provider.FetchNetworkError:
		return Outcome{Kind: KindNetworkError, Name: canonicalName}
	}

	data := fr.Data
	if r.hooks != nil {
		data = r.hooks(data)
	}
	blob, err := record.Encode(data)
	if err != nil {
		return Outcome{Kind: KindDatabaseError, Name: canonicalName, Err: err}
	}

	var key int64
	werr := r.db.WithTx(func(tx *store.Tx) error {
		k, err := tx.InsertRecord(canonicalName, record.Entry, blob, nil, r.now())
		if err != nil {
			return err
		}
		key = k
		return tx.AddIdentifier(canonicalName, k)
	})
	if werr != nil {
		return Outcome{Kind: KindDatabaseError, Name: canonicalName, Err: werr}
	}
	return Outcome{Kind: KindEntry, Name: canonicalName, Key: key, Record: data}
}
