package resolve

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobib/autobib/provider"
	"github.com/autobib/autobib/record"
	"github.com/autobib/autobib/store"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "autobib.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type stubFetcher struct {
	calls  int
	result provider.FetchResult
	err    error
}

func (f *stubFetcher) Fetch(ctx context.Context, subID string) (provider.FetchResult, error) {
	f.calls++
	return f.result, f.err
}

func TestResolveCanonicalFetchesThenCaches(t *testing.T) {
	s := openTestStore(t)
	fetcher := &stubFetcher{result: provider.FetchResult{
		Status: provider.FetchEntry,
		Data:   record.Data{EntryType: "article", Fields: []record.Field{{Key: "doi", Value: "10.4007/annals.2014.180.2.7"}}},
	}}
	reg := provider.NewRegistry().WithFetcher(provider.DOI, fetcher)
	r := New(s, reg, testLogger())

	out := r.Resolve(context.Background(), "doi:10.4007/annals.2014.180.2.7")
	require.Equal(t, KindEntry, out.Kind)
	assert.Equal(t, 1, fetcher.calls)

	out2 := r.Resolve(context.Background(), "doi:10.4007/annals.2014.180.2.7")
	require.Equal(t, KindEntry, out2.Kind)
	assert.Equal(t, 1, fetcher.calls, "second resolution must not hit the network")
	assert.Equal(t, out.Record, out2.Record)
}

func TestResolveNotFoundNegativeCaches(t *testing.T) {
	s := openTestStore(t)
	fetcher := &stubFetcher{result: provider.FetchResult{Status: provider.FetchNotFound}}
	reg := provider.NewRegistry().WithFetcher(provider.ZBMath, fetcher)
	r := New(s, reg, testLogger())

	out := r.Resolve(context.Background(), "zbmath:00000000")
	assert.Equal(t, KindNullRemote, out.Kind)
	assert.Equal(t, 1, fetcher.calls)

	out2 := r.Resolve(context.Background(), "zbmath:00000000")
	assert.Equal(t, KindNullRemote, out2.Kind)
	assert.Equal(t, 1, fetcher.calls, "negative cache must suppress a second fetch")
}

func TestResolveNetworkErrorLeavesDatabaseUnchanged(t *testing.T) {
	s := openTestStore(t)
	fetcher := &stubFetcher{err: &provider.NetworkError{Provider: provider.DOI, Err: context.DeadlineExceeded}}
	reg := provider.NewRegistry().WithFetcher(provider.DOI, fetcher)
	r := New(s, reg, testLogger())

	out := r.Resolve(context.Background(), "doi:10.1/x")
	assert.Equal(t, KindNetworkError, out.Kind)

	err := s.WithTx(func(tx *store.Tx) error {
		exists, err := tx.RecordExists("doi:10.1/x")
		if err != nil {
			return err
		}
		assert.False(t, exists)
		return nil
	})
	require.NoError(t, err)
}

func TestResolveUnboundAliasIsNullAlias(t *testing.T) {
	s := openTestStore(t)
	r := New(s, provider.NewRegistry().DefaultResolvers(), testLogger())
	out := r.Resolve(context.Background(), "some-unbound-alias")
	assert.Equal(t, KindNullAlias, out.Kind)
}

func TestResolveReferenceCachesMappingToCanonical(t *testing.T) {
	s := openTestStore(t)
	fetcher := &stubFetcher{result: provider.FetchResult{
		Status: provider.FetchEntry,
		Data:   record.Data{EntryType: "article"},
	}}
	reg := provider.NewRegistry().DefaultResolvers().WithFetcher(provider.ZBMath, fetcher)
	r := New(s, reg, testLogger())

	out := r.Resolve(context.Background(), "zbl:0002.00100")
	require.Equal(t, KindEntry, out.Kind)
	assert.Equal(t, 1, fetcher.calls)

	out2 := r.Resolve(context.Background(), "zbl:0002.00100")
	require.Equal(t, KindEntry, out2.Kind)
	assert.Equal(t, 1, fetcher.calls, "reference resolution must be cached in Identifiers")
}

func TestResolveBadIdentifier(t *testing.T) {
	s := openTestStore(t)
	r := New(s, provider.NewRegistry(), testLogger())
	out := r.Resolve(context.Background(), "unknownprovider:foo")
	assert.Equal(t, KindBadIdentifier, out.Kind)
}

func TestResolveAliasTransformWithCreateAlias(t *testing.T) {
	s := openTestStore(t)
	fetcher := &stubFetcher{result: provider.FetchResult{
		Status: provider.FetchEntry,
		Data:   record.Data{EntryType: "article"},
	}}
	reg := provider.NewRegistry().WithFetcher(provider.ZBMath, fetcher)
	rules := []AliasRule{
		{Pattern: regexp.MustCompile(`^zbMATH([0-9]{8})$`), Provider: provider.ZBMath},
	}
	r := New(s, reg, testLogger(), WithAliasRules(rules, true))

	out := r.Resolve(context.Background(), "zbMATH06346461")
	require.Equal(t, KindEntry, out.Kind)
	assert.Equal(t, "zbmath:06346461", out.Name)

	out2 := r.Resolve(context.Background(), "zbMATH06346461")
	require.Equal(t, KindEntry, out2.Kind)
	assert.Equal(t, 1, fetcher.calls, "the second resolution must not fetch again")

	err := s.WithTx(func(tx *store.Tx) error {
		res, err := tx.Lookup("zbMATH06346461")
		if err != nil {
			return err
		}
		assert.Equal(t, out.Key, res.Key, "create_alias must index the original alias text")
		return nil
	})
	require.NoError(t, err)
}

func TestBatchResolvesAllInOrder(t *testing.T) {
	s := openTestStore(t)
	fetcher := &stubFetcher{result: provider.FetchResult{Status: provider.FetchEntry, Data: record.Data{EntryType: "misc"}}}
	reg := provider.NewRegistry().WithFetcher(provider.DOI, fetcher)
	r := New(s, reg, testLogger())

	inputs := []string{"doi:10.1/a", "doi:10.1/b", "doi:10.1/c"}
	items := r.Batch(context.Background(), inputs, BatchOptions{})
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, inputs[i], it.Input)
		assert.Equal(t, KindEntry, it.Kind)
	}
}
