package resolve

import (
	"context"
	"sync"

	"github.com/alitto/pond"
)

// BatchItem is one line of a source/import ingestion job together with its
// resolved Outcome.
type BatchItem struct {
	Index int
	Input string
	Outcome
}

// BatchOptions controls the `source`/`import` ingestion loop of spec §4.6's
// final paragraph: entries are resolved independently, in input order for
// reporting purposes, with provider fetches fanned out concurrently via a
// bounded worker pool while writes remain serialized through the store's
// own single-connection transaction model.
type BatchOptions struct {
	// Concurrency bounds the number of in-flight provider fetches. Zero
	// selects a small default.
	Concurrency int
	// Skip is a set of identifier strings that are not resolved (--skip,
	// --skip-from); their items carry KindBadIdentifier with no error.
	Skip map[string]struct{}
	// Seen is a set of inputs already present in an --append output file;
	// they are not resolved and their items carry KindEntry with no record.
	Seen map[string]struct{}
}

// Batch returns one item per input, applying the Skip and Seen filters
// before dispatch and fanning the remaining fetches out across a pond
// worker pool. The returned slice preserves input order regardless of
// completion order; callers that report results leave filtered inputs out.
func (r *Resolver) Batch(ctx context.Context, inputs []string, opts BatchOptions) []BatchItem {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	pool := pond.New(concurrency, len(inputs))
	defer pool.StopAndWait()

	results := make([]BatchItem, len(inputs))
	var mu sync.Mutex
	for i, input := range inputs {
		i, input := i, input
		if _, skip := opts.Skip[input]; skip {
			mu.Lock()
			results[i] = BatchItem{Index: i, Input: input, Outcome: Outcome{Kind: KindBadIdentifier}}
			mu.Unlock()
			continue
		}
		if _, seen := opts.Seen[input]; seen {
			mu.Lock()
			results[i] = BatchItem{Index: i, Input: input, Outcome: Outcome{Kind: KindEntry}}
			mu.Unlock()
			continue
		}
		pool.Submit(func() {
			out := r.Resolve(ctx, input)
			mu.Lock()
			results[i] = BatchItem{Index: i, Input: input, Outcome: out}
			mu.Unlock()
		})
	}
	return results
}
