package provider

import (
	"context"
	"testing"

	"github.com/autobib/autobib/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNormalizeCanonical(t *testing.T) {
	r := NewRegistry()
	norm, ok, err := r.Normalize("doi", "10.4007/ANNALS.2014.180.2.7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10.4007", norm[:7])
	assert.False(t, r.IsReference("doi"))
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, ok, err := r.Normalize("bogus", "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistryReferenceKinds(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.IsReference("isbn"))
	assert.True(t, r.IsReference("jfm"))
	assert.True(t, r.IsReference("zbl"))
	assert.False(t, r.IsReference("zbmath"))
	assert.False(t, r.IsReference("local"))
}

func TestISBNChecksum(t *testing.T) {
	r := NewRegistry()
	_, ok, err := r.Normalize("isbn", "0-306-40615-2")
	assert.True(t, ok)
	assert.NoError(t, err)

	_, ok, err = r.Normalize("isbn", "0-306-40615-3")
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestLocalSubIDMustBeValidAlias(t *testing.T) {
	r := NewRegistry()
	_, ok, err := r.Normalize("local", "my-notes")
	assert.True(t, ok)
	assert.NoError(t, err)

	_, ok, err = r.Normalize("local", "bad:alias")
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestDefaultResolversPureTransform(t *testing.T) {
	r := NewRegistry().DefaultResolvers()
	tag, sub, err := r.Resolve(context.Background(), ZBL, "1337.28015")
	require.NoError(t, err)
	assert.Equal(t, ZBMath, tag)
	assert.NotEmpty(t, sub)
}

type stubFetcher struct {
	result FetchResult
	err    error
}

func (s stubFetcher) Fetch(ctx context.Context, subID string) (FetchResult, error) {
	return s.result, s.err
}

func TestFetchWiring(t *testing.T) {
	r := NewRegistry()
	r.WithFetcher(DOI, stubFetcher{result: FetchResult{Status: FetchEntry, Data: record.Data{EntryType: "article"}}})
	res, err := r.Fetch(context.Background(), DOI, "10.1000/x")
	require.NoError(t, err)
	assert.Equal(t, FetchEntry, res.Status)
	assert.True(t, r.SupportsFetch(DOI))
	assert.False(t, r.SupportsFetch(Local))
}

func TestOnInsertHooks(t *testing.T) {
	d := record.Data{EntryType: "article", Fields: []record.Field{
		{Key: "journal", Value: "Ann.   Math.  (2)"},
		{Key: "title", Value: "  A   Title  "},
	}}
	d = CollapseWhitespace(d)
	title, _ := d.Get("title")
	assert.Equal(t, "A Title", title)

	d = StripJournalSeries(d)
	journal, _ := d.Get("journal")
	assert.Equal(t, "Ann. Math.", journal)
}

func TestSynthesizeEprint(t *testing.T) {
	d := record.Data{EntryType: "article"}
	hook := SynthesizeEprint("2101.00001")
	d = hook(d)
	eprint, ok := d.Get("eprint")
	assert.True(t, ok)
	assert.Equal(t, "2101.00001", eprint)
	prefix, _ := d.Get("archiveprefix")
	assert.Equal(t, "arXiv", prefix)
}
