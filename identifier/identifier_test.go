package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry is a minimal Validator for testing Parse in isolation.
type fakeRegistry struct {
	reference map[string]bool
}

func (f fakeRegistry) Normalize(provider, subID string) (string, bool, error) {
	switch provider {
	case "doi":
		return subID, true, nil
	case "arxiv":
		return subID, true, nil
	case "isbn":
		return subID, true, nil
	case "zbmath":
		return subID, true, nil
	default:
		return "", false, nil
	}
}

func (f fakeRegistry) IsReference(provider string) bool {
	return f.reference[provider]
}

func reg() fakeRegistry {
	return fakeRegistry{reference: map[string]bool{"isbn": true}}
}

func TestParseCanonical(t *testing.T) {
	id, err := Parse("doi:10.1000/xyz", reg())
	require.NoError(t, err)
	assert.Equal(t, KindCanonical, id.Kind)
	assert.Equal(t, "doi", id.Provider)
	assert.Equal(t, "10.1000/xyz", id.SubID)
	assert.Equal(t, "doi:10.1000/xyz", id.Canonical())
}

func TestParseReference(t *testing.T) {
	id, err := Parse("isbn:978-3-16-148410-0", reg())
	require.NoError(t, err)
	assert.Equal(t, KindReference, id.Kind)
}

func TestParseTrimsSubID(t *testing.T) {
	id, err := Parse("doi: 10.1000/xyz ", reg())
	require.NoError(t, err)
	assert.Equal(t, "10.1000/xyz", id.SubID)
}

func TestParseUnknownProvider(t *testing.T) {
	_, err := Parse("bogus:1", reg())
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestParseAlias(t *testing.T) {
	id, err := Parse("hochman-entropy", reg())
	require.NoError(t, err)
	assert.Equal(t, KindAlias, id.Kind)
	assert.Equal(t, "hochman-entropy", id.Alias)
	assert.Equal(t, "hochman-entropy", id.Name())
}

func TestParseEmptyAlias(t *testing.T) {
	_, err := Parse("", reg())
	assert.ErrorIs(t, err, ErrEmptyAlias)
}

func TestParseRevision(t *testing.T) {
	id, err := Parse("#1A2b", reg())
	require.NoError(t, err)
	assert.Equal(t, KindRevision, id.Kind)
	assert.Equal(t, uint64(0x1a2b), id.Revision)
	assert.Equal(t, "#1a2b", id.Name())
}

func TestParseRevisionLeadingZeros(t *testing.T) {
	id, err := Parse("#00ff", reg())
	require.NoError(t, err)
	assert.Equal(t, uint64(0xff), id.Revision)
}

func TestParseBadRevision(t *testing.T) {
	_, err := Parse("#zzzz", reg())
	assert.ErrorIs(t, err, ErrBadRevision)
	_, err = Parse("#", reg())
	assert.ErrorIs(t, err, ErrBadRevision)
}

func TestValidateAlias(t *testing.T) {
	assert.NoError(t, ValidateAlias("hochman-entropy"))
	assert.ErrorIs(t, ValidateAlias(""), ErrEmptyAlias)
	assert.ErrorIs(t, ValidateAlias("#abc"), ErrAliasHash)
	assert.ErrorIs(t, ValidateAlias("a:b"), ErrAliasColon)
}

func TestValidateCitationKey(t *testing.T) {
	assert.NoError(t, ValidateCitationKey("doi:10.1000/xyz"))
	assert.NoError(t, ValidateCitationKey("hochman-entropy"))
	for _, bad := range []string{"a{b", "a}b", "a(b", "a)b", "a,b", "a=b", `a\b`, "a#b", "a%b", `a"b`, "a b", "a\tb"} {
		assert.Error(t, ValidateCitationKey(bad), "expected error for %q", bad)
	}
}
