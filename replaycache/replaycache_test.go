package replaycache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordThenReplayRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.log")

	rec, err := Open(path, Record)
	require.NoError(t, err)
	require.NoError(t, rec.Append("GET", "https://example.test/a", nil, Entry{StatusCode: 200, Body: []byte(`{"ok":true}`)}))
	require.NoError(t, rec.Append("POST", "https://example.test/b", []byte(`q=1`), Entry{StatusCode: 201, Body: []byte(`{}`)}))
	require.NoError(t, rec.Close())

	rep, err := Open(path, Replay)
	require.NoError(t, err)

	e, err := rep.Lookup("GET", "https://example.test/a", nil)
	require.NoError(t, err)
	assert.Equal(t, 200, e.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(e.Body))

	e2, err := rep.Lookup("POST", "https://example.test/b", []byte(`q=1`))
	require.NoError(t, err)
	assert.Equal(t, 201, e2.StatusCode)

	stats := rep.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 2, stats.Reads)
}

func TestReplayMissErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.log")
	rec, err := Open(path, Record)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	rep, err := Open(path, Replay)
	require.NoError(t, err)
	_, err = rep.Lookup("GET", "https://example.test/missing", nil)
	var missErr *MissError
	assert.ErrorAs(t, err, &missErr)
}

func TestDifferentBodiesAreDifferentKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.log")
	rec, err := Open(path, Record)
	require.NoError(t, err)
	require.NoError(t, rec.Append("POST", "https://example.test/x", []byte("a"), Entry{StatusCode: 200}))
	require.NoError(t, rec.Append("POST", "https://example.test/x", []byte("b"), Entry{StatusCode: 404}))
	require.NoError(t, rec.Close())

	rep, err := Open(path, Replay)
	require.NoError(t, err)
	ea, err := rep.Lookup("POST", "https://example.test/x", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, 200, ea.StatusCode)
	eb, err := rep.Lookup("POST", "https://example.test/x", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, 404, eb.StatusCode)
}
